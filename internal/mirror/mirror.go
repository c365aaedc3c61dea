// Package mirror maintains a local clone of the upstream speech model
// repository and derives catalog candidates from its directory layout:
//
//	<root>/<model type>/<language>/[variant/][vX.Y.Z/]
//
// Version directories look like "1.0" or "v3.1.0"; any other directory under
// a language is treated as a variant. A bare language directory is a single
// model at version "latest".
package mirror

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alignlab/alignd/internal/catalog"
	"github.com/alignlab/alignd/internal/config"
	"github.com/alignlab/alignd/pkg/model"
)

var versionDirRe = regexp.MustCompile(`^v?\d+\.\d+`)

var modelTypes = []model.ModelType{
	model.ModelTypeG2P,
	model.ModelTypeDictionary,
	model.ModelTypeAcoustic,
}

// Mirror crawls a local clone of the model repository.
type Mirror struct {
	path    string
	remote  string
	timeout time.Duration
}

// New creates a mirror over the configured local path.
func New(cfg config.MirrorConfig) *Mirror {
	return &Mirror{path: cfg.Path, remote: cfg.RemoteURL, timeout: cfg.Timeout}
}

// Refresh clones the repository if the local path does not exist yet, or
// pulls the latest revision otherwise.
func (m *Mirror) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		log.WithField("path", m.path).Info("cloning model repository")
		cmd = exec.CommandContext(ctx, "git", "clone", "--depth", "1", m.remote, m.path)
	} else {
		cmd = exec.CommandContext(ctx, "git", "-C", m.path, "pull", "--rebase")
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "updating model repository: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// Fetch refreshes the mirror and derives catalog candidates from it. A
// failed refresh is logged and the existing clone is crawled as-is.
func (m *Mirror) Fetch(ctx context.Context) ([]catalog.Candidate, error) {
	if err := m.Refresh(ctx); err != nil {
		log.WithError(err).Warn("failed to refresh model repository, using existing data")
	}

	var candidates []catalog.Candidate
	for _, t := range modelTypes {
		typeCandidates, err := m.crawlType(t)
		if err != nil {
			log.WithError(err).WithField("type", t).Warn("skipping model type")
			continue
		}
		candidates = append(candidates, typeCandidates...)
	}
	return candidates, nil
}

func (m *Mirror) crawlType(t model.ModelType) ([]catalog.Candidate, error) {
	typePath := filepath.Join(m.path, string(t))
	languageDirs, err := readDirs(typePath)
	if err != nil {
		return nil, err
	}

	var candidates []catalog.Candidate
	for _, languageCode := range languageDirs {
		candidates = append(candidates,
			m.crawlLanguage(t, languageCode, filepath.Join(typePath, languageCode))...)
	}
	return candidates, nil
}

func (m *Mirror) crawlLanguage(
	t model.ModelType, languageCode, languagePath string,
) []catalog.Candidate {
	languageName := languageDisplayName(languageCode)
	base := catalog.Candidate{
		Type:         t,
		LanguageCode: languageCode,
		LanguageName: languageName,
	}

	subdirs, err := readDirs(languagePath)
	if err != nil || len(subdirs) == 0 {
		// A bare language directory is a single unversioned model.
		c := base
		c.Name = languageCode
		c.Version = "latest"
		return []catalog.Candidate{c}
	}

	var candidates []catalog.Candidate
	for _, subdir := range subdirs {
		if versionDirRe.MatchString(subdir) {
			c := base
			c.Name = languageCode
			c.Version = strings.TrimPrefix(subdir, "v")
			candidates = append(candidates, c)
			continue
		}

		// Not a version: a variant directory, possibly with versions inside.
		variant := subdir
		name := languageCode + "_" + variant
		versions := versionDirsIn(filepath.Join(languagePath, subdir))
		if len(versions) == 0 {
			c := base
			c.Name = name
			c.Variant = variant
			c.Version = "latest"
			candidates = append(candidates, c)
			continue
		}
		for _, v := range versions {
			c := base
			c.Name = name
			c.Variant = variant
			c.Version = strings.TrimPrefix(v, "v")
			candidates = append(candidates, c)
		}
	}
	return candidates
}

func versionDirsIn(path string) []string {
	dirs, err := readDirs(path)
	if err != nil {
		return nil
	}
	var versions []string
	for _, d := range dirs {
		if versionDirRe.MatchString(d) {
			versions = append(versions, d)
		}
	}
	return versions
}

// readDirs lists the non-hidden subdirectories of path.
func readDirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}
