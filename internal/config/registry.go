package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ModelChannel is one internal outbound channel a logical model can route
// calls through (§4.C).
type ModelChannel struct {
	InternalID string   `json:"internal_id"`
	APIURL     string   `json:"api_url"`
	APIKeys    []string `json:"api_keys"`
}

// ModelDescriptor is one entry of models.json.
type ModelDescriptor struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Weight         float64        `json:"weight"`
	APIURL         string         `json:"api_url"`
	APIKeys        []string       `json:"api_keys"`
	APIFormat      string         `json:"api_format"` // "openai" or "anthropic"
	EnableThinking bool           `json:"enable_thinking"`
	InternalModels []ModelChannel `json:"internal_models"`
}

type modelsFile struct {
	Models []ModelDescriptor `json:"models"`
}

type fixedPromptsFile struct {
	Prompts map[string]string `json:"prompts"`
}

// ModelScoreSeed is one model_scores.json seed entry.
type ModelScoreSeed struct {
	Rating    float64  `json:"rating"`
	RD        *float64 `json:"rd"`
	Volatility float64 `json:"volatility"`
	Tier      string   `json:"tier"`
}

type presetModelsFile struct {
	Models []string `json:"models"`
}

type modelPresetMapFile map[string][]string

// cachedFile caches a decoded value against the mtime it was loaded from.
type cachedFile[T any] struct {
	path    string
	value   atomic.Pointer[T]
	modTime atomic.Int64
}

func (c *cachedFile[T]) load(decode func([]byte) (*T, error)) (*T, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		if cached := c.value.Load(); cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("stat %s: %w", c.path, err)
	}
	mtime := info.ModTime().UnixNano()
	if cached := c.value.Load(); cached != nil && c.modTime.Load() == mtime {
		return cached, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.path, err)
	}
	decoded, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.path, err)
	}
	c.value.Store(decoded)
	c.modTime.Store(mtime)
	return decoded, nil
}

// forceReload drops the cached mtime so the next load re-reads the file
// regardless of whether the filesystem mtime actually changed.
func (c *cachedFile[T]) forceReload() {
	c.modTime.Store(-1)
}

// Registry exposes hot-reloadable typed views over the config-directory
// JSON files plus the rate/matchmaking/tier knobs from Config (§4.A).
type Registry struct {
	cfg *Config

	models       cachedFile[modelsFile]
	prompts      cachedFile[fixedPromptsFile]
	scores       cachedFile[map[string]ModelScoreSeed]
	presetModels cachedFile[presetModelsFile]
	presetMap    cachedFile[modelPresetMapFile]
	presetAnswers atomic.Pointer[map[string]map[string][]string]
	presetAnswersMod atomic.Int64
}

// NewRegistry constructs a Registry bound to cfg's configured file paths.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{cfg: cfg}
	r.models.path = cfg.Paths.ModelsFile
	r.prompts.path = cfg.Paths.FixedPromptsFile
	r.scores.path = cfg.Paths.ModelScoresFile
	r.presetModels.path = cfg.Paths.PresetModelsFile
	r.presetMap.path = cfg.Paths.ModelPresetMapFile
	return r
}

// Models returns the configured model list.
func (r *Registry) Models() ([]ModelDescriptor, error) {
	f, err := r.models.load(func(b []byte) (*modelsFile, error) {
		var mf modelsFile
		if err := json.Unmarshal(b, &mf); err != nil {
			return nil, err
		}
		return &mf, nil
	})
	if err != nil {
		return nil, err
	}
	return f.Models, nil
}

// FixedPrompts returns the prompt-id → text map.
func (r *Registry) FixedPrompts() (map[string]string, error) {
	f, err := r.prompts.load(func(b []byte) (*fixedPromptsFile, error) {
		var pf fixedPromptsFile
		if err := json.Unmarshal(b, &pf); err != nil {
			return nil, err
		}
		return &pf, nil
	})
	if err != nil {
		return nil, err
	}
	return f.Prompts, nil
}

// ModelScoreSeeds returns the seeding scores for first-observation inserts.
// Missing file is not an error: seeding falls back to Glicko-2 defaults.
func (r *Registry) ModelScoreSeeds() map[string]ModelScoreSeed {
	f, err := r.scores.load(func(b []byte) (*map[string]ModelScoreSeed, error) {
		var m map[string]ModelScoreSeed
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
	if err != nil {
		return map[string]ModelScoreSeed{}
	}
	return *f
}

// PresetModelIDs returns the set of model ids that serve canned answers.
func (r *Registry) PresetModelIDs() map[string]bool {
	f, err := r.presetModels.load(func(b []byte) (*presetModelsFile, error) {
		var pf presetModelsFile
		if err := json.Unmarshal(b, &pf); err != nil {
			return nil, err
		}
		return &pf, nil
	})
	out := map[string]bool{}
	if err != nil {
		return out
	}
	for _, id := range f.Models {
		out[id] = true
	}
	return out
}

// PresetAnswers returns, for a preset model id and prompt id, the candidate
// answer pool, loading config/preset_answers/<id>.json lazily and caching by
// the directory's maximum mtime.
func (r *Registry) PresetAnswers(modelID, promptID string) ([]string, error) {
	info, err := os.Stat(r.cfg.Paths.PresetAnswersDir)
	if err != nil {
		return nil, nil
	}
	maxMod := info.ModTime().UnixNano()
	if entries, err := os.ReadDir(r.cfg.Paths.PresetAnswersDir); err == nil {
		for _, e := range entries {
			if fi, err := e.Info(); err == nil && fi.ModTime().UnixNano() > maxMod {
				maxMod = fi.ModTime().UnixNano()
			}
		}
	}

	cached := r.presetAnswers.Load()
	if cached == nil || r.presetAnswersMod.Load() != maxMod {
		entries, err := os.ReadDir(r.cfg.Paths.PresetAnswersDir)
		if err != nil {
			return nil, err
		}
		packs := map[string]map[string][]string{}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			ext := filepath.Ext(name)
			if ext != ".json" {
				continue
			}
			id := name[:len(name)-len(ext)]
			data, err := os.ReadFile(filepath.Join(r.cfg.Paths.PresetAnswersDir, name))
			if err != nil {
				return nil, err
			}
			var pack map[string][]string
			if err := json.Unmarshal(data, &pack); err != nil {
				return nil, err
			}
			packs[id] = pack
		}
		r.presetAnswers.Store(&packs)
		r.presetAnswersMod.Store(maxMod)
		cached = &packs
	}

	pack, ok := (*cached)[modelID]
	if !ok {
		return nil, nil
	}
	return pack[promptID], nil
}

// ForceReloadModels drops the cached models.json mtime, triggering a fresh
// read on the next Models() call (driven by the file watcher, §4.I).
func (r *Registry) ForceReloadModels() {
	r.models.forceReload()
}

// ForceReloadFixedPrompts drops the cached fixed_prompts.json mtime.
func (r *Registry) ForceReloadFixedPrompts() {
	r.prompts.forceReload()
}
