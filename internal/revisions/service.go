// Package revisions keeps a git-backed history of page configurations, one
// repository per entity.
package revisions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"donorbase/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const configFile = "page-config.json"

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// RecordRevision commits a page config snapshot for the entity, initializing
// its repository on first use. The config must be valid JSON.
func (s *Service) RecordRevision(entityID, config, author, message string) (store.RevisionInfo, error) {
	lock := s.entityLock(entityID)
	lock.Lock()
	defer lock.Unlock()

	if !json.Valid([]byte(config)) {
		return store.RevisionInfo{}, errors.New("page config is not valid JSON")
	}

	repo, err := s.openOrInit(entityID)
	if err != nil {
		return store.RevisionInfo{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return store.RevisionInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, configFile), append([]byte(config), '\n'), 0o644); err != nil {
		return store.RevisionInfo{}, fmt.Errorf("write page config: %w", err)
	}

	if _, err := worktree.Add(configFile); err != nil {
		return store.RevisionInfo{}, fmt.Errorf("git add page config: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.donorbase.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return store.RevisionInfo{}, fmt.Errorf("commit page config: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.RevisionInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevisionInfo(commitObj), nil
}

// History lists revisions newest first, up to limit (0 = all).
func (s *Service) History(entityID string, limit int) ([]store.RevisionInfo, error) {
	lock := s.entityLock(entityID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(entityID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []store.RevisionInfo{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return []store.RevisionInfo{}, nil
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.RevisionInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevisionInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetRevision returns the page config stored at the given revision hash.
func (s *Service) GetRevision(entityID, hash string) (string, store.RevisionInfo, error) {
	lock := s.entityLock(entityID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(entityID))
	if err != nil {
		return "", store.RevisionInfo{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return "", store.RevisionInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return "", store.RevisionInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	config, err := readConfigFromCommit(commitObj)
	if err != nil {
		return "", store.RevisionInfo{}, err
	}
	return config, toRevisionInfo(commitObj), nil
}

func (s *Service) repoPath(entityID string) string {
	return filepath.Join(s.baseDir, entityID)
}

func (s *Service) entityLock(entityID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[entityID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[entityID] = lock
	return lock
}

func (s *Service) openOrInit(entityID string) (*git.Repository, error) {
	path := s.repoPath(entityID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func readConfigFromCommit(commitObj *object.Commit) (string, error) {
	file, err := commitObj.File(configFile)
	if err != nil {
		return "", fmt.Errorf("load page config from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return "", fmt.Errorf("open config reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read config bytes: %w", err)
	}
	return string(raw), nil
}

func toRevisionInfo(commitObj *object.Commit) store.RevisionInfo {
	return store.RevisionInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
