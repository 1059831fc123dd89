package scan

import (
	"fmt"

	"github.com/nexamediaserver/server/internal/ffmpeg"
	"github.com/nexamediaserver/server/internal/models"
)

// Analyze runs ffprobe against path and merges the result into item. Media
// technical fields are always FFprobe-authoritative — unlike MetadataItem
// fields they are never subject to a field lock. Concurrency is per media
// file, not per metadata item, so callers are free to analyze every part of
// a multi-part item in parallel.
func Analyze(probe *ffmpeg.FFprobe, path string, item *models.MediaItem) error {
	result, err := probe.Probe(path)
	if err != nil {
		return fmt.Errorf("scan: analyze %s: %w", path, err)
	}

	item.Container = extOf(path)
	item.DurationMs = result.DurationMs
	item.Bitrate = result.BitrateBps
	if v := result.Video; v != nil {
		item.Width = v.Width
		item.Height = v.Height
		item.VideoCodec = v.Codec
		item.HDRFormat = v.HDRFormat
		item.Rotation = v.Rotation
	}
	if len(result.Audio) > 0 {
		item.AudioCodec = result.Audio[0].Codec
	}

	for _, t := range result.Audio {
		item.AudioStreams = append(item.AudioStreams, models.AudioStream{
			StreamIndex:   t.StreamIndex,
			Codec:         t.Codec,
			Channels:      t.Channels,
			ChannelLayout: t.ChannelLayout,
			Language:      t.Language,
			Title:         t.Title,
			IsDefault:     t.IsDefault,
		})
	}
	for _, t := range result.Subtitles {
		idx := t.StreamIndex
		item.SubtitleStreams = append(item.SubtitleStreams, models.SubtitleStream{
			Source:      models.SubtitleEmbedded,
			StreamIndex: &idx,
			Language:    t.Language,
			Title:       t.Title,
			IsDefault:   t.IsDefault,
			IsForced:    t.IsForced,
			IsSDH:       t.IsSDH,
		})
	}

	return nil
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/' && path[i] != '\\'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}
