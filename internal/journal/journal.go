// Package journal хранит намерения изменить живой интерфейс до того, как
// изменение сделано, и до коммита реестра. Оставшиеся после сбоя записи
// подсказывают сверке, какие ключи на интерфейсе принадлежат нам.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

const lockName = ".lock"

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Intent struct {
	ID           string    `yaml:"id"`
	Op           Op        `yaml:"op"`
	PeerID       string    `yaml:"peer_id"`
	PublicKey    string    `yaml:"public_key,omitempty"`
	OldPublicKey string    `yaml:"old_public_key,omitempty"`
	Address      string    `yaml:"address,omitempty"`
	Interface    string    `yaml:"interface"`
	Actor        string    `yaml:"actor,omitempty"`
	CreatedAt    time.Time `yaml:"created_at"`
}

// Keys возвращает публичные ключи, которые намерение могло оставить на интерфейсе.
func (i Intent) Keys() []string {
	var out []string
	for _, k := range []string{i.PublicKey, i.OldPublicKey} {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Journal хранит каталог с одним yaml-файлом на незавершённое намерение.
type Journal struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func Open(dir string) (*Journal, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("journal dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	return &Journal{dir: dir, now: time.Now}, nil
}

// Begin записывает намерение на диск и возвращает его id.
func (j *Journal) Begin(in Intent) (string, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = j.now().UTC()
	}
	raw, err := yaml.Marshal(in)
	if err != nil {
		return "", err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	final := j.path(in.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return "", fmt.Errorf("journal write: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("journal commit: %w", err)
	}
	return in.ID, nil
}

// Resolve удаляет намерение. Отсутствующее — не ошибка.
func (j *Journal) Resolve(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.Remove(j.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("journal resolve %s: %w", id, err)
	}
	return nil
}

// Pending возвращает незавершённые намерения, старые первыми.
func (j *Journal) Pending() ([]Intent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	files, err := filepath.Glob(filepath.Join(j.dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]Intent, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		var in Intent
		if err := yaml.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("journal %s: %w", filepath.Base(f), err)
		}
		out = append(out, in)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

// Hold берёт разделяемую блокировку каталога на время операции над пиром.
// Операций в полёте может быть сколько угодно; Exclusive ждёт их все,
// включая операции других процессов с тем же каталогом.
func (j *Journal) Hold() (func(), error) {
	return j.flock(unix.LOCK_SH)
}

// Exclusive берёт блокировку для сверки: пока она взята, новых намерений нет,
// а все ожидающие принадлежат операциям, которые уже не выполняются.
func (j *Journal) Exclusive() (func(), error) {
	return j.flock(unix.LOCK_EX)
}

func (j *Journal) flock(how int) (func(), error) {
	f, err := os.OpenFile(filepath.Join(j.dir, lockName), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("journal lock: %w", err)
	}
	fd := int(f.Fd())
	for {
		err = unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("journal lock: %w", err)
	}
	return func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

func (j *Journal) path(id string) string {
	return filepath.Join(j.dir, filepath.Base(id)+".yaml")
}
