// Package scheduler runs the periodic check that clears a watcher's
// requires_full_rescan flag (§4.5) by kicking off a full scan for any
// library section the watcher has flagged since its last clean scan.
package scheduler

import (
	"log"

	"github.com/robfig/cron/v3"

	"github.com/nexamediaserver/server/internal/repository"
)

// OnScanDue is invoked once per library section flagged as needing a full
// rescan.
type OnScanDue func(sectionID int64)

// RescanFlagSource reports whether a section currently needs a full rescan;
// internal/watcher.Watcher implements this.
type RescanFlagSource interface {
	RequiresFullRescan(sectionID int64) bool
}

// Scheduler polls RescanFlagSource on a cron schedule and fires OnScanDue
// for every flagged section, mirroring the teacher's ticker-loop due-check
// shape but expressed as a cron expression so the interval is configurable
// without a code change.
type Scheduler struct {
	sectionRepo *repository.LibrarySectionRepository
	flags       RescanFlagSource
	callback    OnScanDue
	cron        *cron.Cron
	spec        string
}

// New creates a scheduler that checks every section in sectionRepo against
// flags on the given cron spec (default "@every 1m").
func New(sectionRepo *repository.LibrarySectionRepository, flags RescanFlagSource, spec string, cb OnScanDue) *Scheduler {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Scheduler{
		sectionRepo: sectionRepo,
		flags:       flags,
		callback:    cb,
		cron:        cron.New(),
		spec:        spec,
	}
}

// Start registers the check and begins the cron loop.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.spec, s.check); err != nil {
		log.Printf("[scheduler] invalid spec %q: %v", s.spec, err)
		return
	}
	s.cron.Start()
	log.Printf("[scheduler] requires-full-rescan checker started (%s)", s.spec)
}

// Stop halts the cron loop and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) check() {
	sections, err := s.sectionRepo.List()
	if err != nil {
		log.Printf("[scheduler] list sections: %v", err)
		return
	}
	for _, sec := range sections {
		if s.flags.RequiresFullRescan(sec.ID) {
			log.Printf("[scheduler] section %q requires a full rescan", sec.Name)
			s.callback(sec.ID)
		}
	}
}
