package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/quietreach/reach-cli/internal/domain"
	"github.com/quietreach/reach-cli/internal/ports"
)

const (
	rateStatePathKey  = "ratestate.path"
	rateStateFileName = "ratestate.toml"
	rateStateTempPat  = ".ratestate-*.toml.tmp"
)

// RateStateRepository persists limiter windows next to the sessions file so
// throttling survives restarts.
type RateStateRepository struct {
	path string
	mu   *sync.RWMutex
}

var _ ports.RateStateRepository = (*RateStateRepository)(nil)

func NewRateStateRepository(cfg *viper.Viper) (*RateStateRepository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, stateConfigDir, rateStateFileName)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, stateConfigDir))
	cfg.SetDefault(rateStatePathKey, defaultPath)

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	path := cfg.GetString(rateStatePathKey)
	if path == "" {
		return nil, errors.New("rate state path is empty")
	}
	path, err = normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &RateStateRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *RateStateRepository) Load(ctx context.Context) ([]domain.RateStateEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rate state file: %w", err)
	}

	var file rateFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode rate state file: %w", err)
	}
	if err := validateVersion(file.Version); err != nil {
		return nil, err
	}

	entries := make([]domain.RateStateEntry, 0, len(file.Windows))
	for _, row := range file.Windows {
		entries = append(entries, fromRateWindowRow(row))
	}

	return entries, nil
}

func (r *RateStateRepository) Save(ctx context.Context, entries []domain.RateStateEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file := rateFileSchema{Version: currentSchemaVersion}
	for _, entry := range entries {
		file.Windows = append(file.Windows, toRateWindowRow(entry))
	}

	return writeAtomic(r.path, rateStateTempPat, file)
}
