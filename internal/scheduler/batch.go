package scheduler

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/jobservice"
	"gopkg.in/yaml.v3"
)

// Entry is one download in a batch file.
type Entry struct {
	Link     string               `yaml:"link"`
	Format   string               `yaml:"format,omitempty"`
	Type     jobservice.MediaType `yaml:"type,omitempty"`
	Playlist *bool                `yaml:"playlist,omitempty"`
	Title    string               `yaml:"title,omitempty"`
	Output   string               `yaml:"op,omitempty"`
}

// BatchFile groups entries by media type:
//
//	video:
//	  - link: https://youtu.be/abc
//	    format: "22"
//	audio:
//	  - link: https://youtu.be/def
//	    op: song.m4a
type BatchFile map[string][]Entry

func LoadBatch(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading batch file: %w", err)
	}
	return ParseBatch(data)
}

// ParseBatch decodes a batch file. Sections are visited in name order;
// unknown sections and entries without a link are skipped.
func ParseBatch(data []byte) ([]Entry, error) {
	var batchFile BatchFile
	if err := yaml.Unmarshal(data, &batchFile); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %w", err)
	}
	sections := make([]string, 0, len(batchFile))
	for section := range batchFile {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	var entries []Entry
	for _, section := range sections {
		mediaType := normalizeSection(section)
		if mediaType == "" {
			log.Warn().Str("op", "scheduler/batch").Msgf("unknown section %q, skipping", section)
			continue
		}
		for _, entry := range batchFile[section] {
			if strings.TrimSpace(entry.Link) == "" {
				log.Warn().Str("op", "scheduler/batch").Msgf("empty link in %s section, skipping", section)
				continue
			}
			entry.Link = strings.TrimSpace(entry.Link)
			if entry.Type == "" {
				entry.Type = mediaType
			}
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid entries found in the batch file")
	}
	return entries, nil
}

func normalizeSection(section string) jobservice.MediaType {
	switch strings.ToLower(strings.TrimSpace(section)) {
	case "video", "videos", "v", "youtube", "yt":
		return jobservice.MediaVideo
	case "audio", "a", "music", "ytm", "ytmusic", "yt-music":
		return jobservice.MediaAudio
	}
	return ""
}
