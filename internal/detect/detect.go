// Package detect probes a repository for known CI configuration files and
// returns one DetectedConfig per CI kind it finds.
package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/ci-migrate/cipilot/internal/ghclient"
	"github.com/ci-migrate/cipilot/internal/model"
	"github.com/ci-migrate/cipilot/pkg/constants"
	"github.com/ci-migrate/cipilot/pkg/logger"
)

var log = logger.New("detect:detect")

// ContentsClient is the slice of ghclient.Client this package calls; tests
// supply a fake satisfying it instead of hitting the network.
type ContentsClient interface {
	GetContents(ctx context.Context, owner, repo, path, ref string) (*ghclient.FileContent, error)
	ListDirectory(ctx context.Context, owner, repo, dir, ref string) ([]ghclient.DirEntry, error)
}

// Detect iterates constants.DetectionPatterns and returns one DetectedConfig
// per CI kind that has a match, with the first matching pattern within a
// kind's ordered list winning. A repository with no matches returns an
// empty, non-error result — "no CI found" is success.
func Detect(ctx context.Context, client ContentsClient, owner, repo, ref string) ([]model.DetectedConfig, error) {
	var found []model.DetectedConfig

	for _, kind := range model.AllCIKinds {
		patterns := constants.DetectionPatterns[kind]
		config, err := firstMatch(ctx, client, owner, repo, ref, kind, patterns)
		if err != nil {
			return nil, fmt.Errorf("detect: %s: %w", kind, err)
		}
		if config != nil {
			found = append(found, *config)
		}
	}

	log.Printf("%s/%s@%s: detected %d CI configuration(s)", owner, repo, ref, len(found))
	return found, nil
}

func firstMatch(ctx context.Context, client ContentsClient, owner, repo, ref string, kind model.CIKind, patterns []string) (*model.DetectedConfig, error) {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			config, err := firstMatchInDirectory(ctx, client, owner, repo, ref, kind, pattern)
			if err != nil {
				return nil, err
			}
			if config != nil {
				return config, nil
			}
			continue
		}

		content, err := client.GetContents(ctx, owner, repo, pattern, ref)
		if err != nil {
			if ghclient.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		body, err := content.Decode()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", pattern, err)
		}
		return &model.DetectedConfig{CIKind: kind, SourceYAML: string(body), SourcePath: pattern}, nil
	}
	return nil, nil
}

func firstMatchInDirectory(ctx context.Context, client ContentsClient, owner, repo, ref string, kind model.CIKind, dir string) (*model.DetectedConfig, error) {
	entries, err := client.ListDirectory(ctx, owner, repo, strings.TrimSuffix(dir, "/"), ref)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Type != "file" {
			continue
		}
		if !strings.HasSuffix(entry.Name, ".yml") && !strings.HasSuffix(entry.Name, ".yaml") {
			continue
		}
		content, err := client.GetContents(ctx, owner, repo, entry.Path, ref)
		if err != nil {
			if ghclient.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		body, err := content.Decode()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", entry.Path, err)
		}
		return &model.DetectedConfig{CIKind: kind, SourceYAML: string(body), SourcePath: entry.Path}, nil
	}
	return nil, nil
}
