package persist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/instance"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
)

// FormatVersion is written into every saved map header.
const FormatVersion = 1

var (
	// ErrUnsupportedVersion is returned when a saved map was written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported map format version")
	// ErrUnknownStore is returned by Open for an unknown store kind.
	ErrUnknownStore = errors.New("unknown store kind")
)

type Header struct {
	Version int       `json:"version"`
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	SavedAt time.Time `json:"saved_at"`
}

// InstanceRecord is the persisted form of one instance. The model is stored by name.
type InstanceRecord struct {
	UID      uint32     `json:"uid"`
	Kind     string     `json:"kind"`
	Model    string     `json:"model"`
	Position [3]float32 `json:"position"`
	Rotation [3]float32 `json:"rotation"`
	Scale    [3]float32 `json:"scale"`
}

// MapSnapshot is a whole saved map. Instances are kept sorted by UID.
type MapSnapshot struct {
	Header    Header           `json:"header"`
	Instances []InstanceRecord `json:"instances"`
}

// Store saves and loads whole maps.
type Store interface {
	Save(ctx context.Context, snap MapSnapshot) error
	Load(ctx context.Context) (MapSnapshot, error)
	Close() error
}

// Open returns the store for a config kind ("snapshot" or "sqlite").
func Open(kind, path string) (Store, error) {
	switch kind {
	case "snapshot":
		return NewSnapshotFile(path), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, kind)
	}
}

// NewMapSnapshot builds a snapshot from instances, sorting them by UID.
func NewMapSnapshot(name string, instances []instance.Instance) MapSnapshot {
	records := make([]InstanceRecord, 0, len(instances))
	for i := range instances {
		records = append(records, RecordFromInstance(&instances[i]))
	}
	sortRecords(records)
	return MapSnapshot{
		Header: Header{
			Version: FormatVersion,
			Name:    name,
			Count:   len(records),
			SavedAt: time.Now().UTC(),
		},
		Instances: records,
	}
}

func RecordFromInstance(inst *instance.Instance) InstanceRecord {
	return InstanceRecord{
		UID:      inst.UID,
		Kind:     inst.Kind.String(),
		Model:    inst.ModelName(),
		Position: inst.Transform.Position,
		Rotation: inst.Transform.Rotation,
		Scale:    inst.Transform.Scale,
	}
}

// Instance resolves the record's model through the catalog.
// The returned instance keeps the saved UID so it can be requested on Add.
func (r InstanceRecord) Instance(catalog model.Catalog) (instance.Instance, error) {
	kind, err := instance.ParseKind(r.Kind)
	if err != nil {
		return instance.Instance{}, fmt.Errorf("uid %d: %w", r.UID, err)
	}
	m, ok := catalog.Get(r.Model)
	if !ok {
		return instance.Instance{}, fmt.Errorf("uid %d: %w: %s", r.UID, model.ErrUnknownModel, r.Model)
	}
	return instance.NewInstance(
		instance.WithUID(r.UID),
		instance.WithKind(kind),
		instance.WithModel(m),
		instance.WithTransform(common.Transform{
			Position: r.Position,
			Rotation: r.Rotation,
			Scale:    r.Scale,
		}),
	), nil
}

func sortRecords(records []InstanceRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].UID < records[j].UID })
}

func checkVersion(h Header) error {
	if h.Version > FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return nil
}
