package bt

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"
)

type preferredData struct {
	Address     string    `json:"address"`
	Name        string    `json:"name,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// PreferredTrainer remembers the last trainer connected to, so the next run
// can skip picking one.
type PreferredTrainer struct {
	filePath string
	data     preferredData
	logger   *log.Logger
}

func NewPreferredTrainer(dataDir string, logger *log.Logger) *PreferredTrainer {
	if logger == nil {
		panic("PreferredTrainer: logger cannot be nil")
	}
	p := &PreferredTrainer{
		filePath: filepath.Join(dataDir, "trainer.json"),
		logger:   logger,
	}
	p.load()
	return p
}

// Address returns the remembered address, or "" when none is stored.
func (p *PreferredTrainer) Address() string {
	return p.data.Address
}

// Remember stores address as the preferred trainer.
func (p *PreferredTrainer) Remember(address, name string, at time.Time) {
	p.logger.Printf("PreferredTrainer: remember %q (%s)", address, name)
	p.data = preferredData{Address: address, Name: name, ConnectedAt: at}
	p.save()
}

func (p *PreferredTrainer) load() {
	raw, err := os.ReadFile(p.filePath)
	if err != nil {
		p.logger.Printf("PreferredTrainer: load %s (no existing file)", p.filePath)
		return
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		p.logger.Printf("PreferredTrainer: load %s failed to parse: %v", p.filePath, err)
		p.data = preferredData{}
		return
	}
	p.logger.Printf("PreferredTrainer: load %s -> %q", p.filePath, p.data.Address)
}

func (p *PreferredTrainer) save() {
	if err := os.MkdirAll(filepath.Dir(p.filePath), 0o755); err != nil {
		p.logger.Printf("PreferredTrainer: save mkdir failed: %v", err)
		return
	}
	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		p.logger.Printf("PreferredTrainer: save marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(p.filePath, raw, 0o644); err != nil {
		p.logger.Printf("PreferredTrainer: save %s failed: %v", p.filePath, err)
	}
}
