package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cuemby/instance-scheduler/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRegistry = []byte("registry")
	bucketSchedule = []byte("schedules")
	bucketPeriod   = []byte("periods")
	bucketMWMirror = []byte("mw_mirror")
	bucketCA       = []byte("ca")
	caKey          = []byte("root")
)

// BoltStore implements Store using go.etcd.io/bbolt, one bucket per entity
// type and JSON-marshaled values, following the composite key design of
// SPEC_FULL.md §9.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the bbolt database under dataDir
// and ensures every entity bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "scheduler.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRegistry, bucketSchedule, bucketPeriod, bucketMWMirror, bucketCA} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func registryKey(account, region string, service types.Service, resourceType types.ResourceType, resourceID string) string {
	return account + "|resource#" + region + "#" + string(service) + "#" + string(resourceType) + "#" + resourceID
}

// PutRegisteredInstance upserts a registry row keyed on
// (account, "resource#region#service#resourceType#resourceID").
func (s *BoltStore) PutRegisteredInstance(inst *types.RegisteredInstance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistry)
		data, err := json.Marshal(inst)
		if err != nil {
			return err
		}
		key := registryKey(inst.Account, inst.Region, inst.Service, inst.ResourceType, inst.ResourceID)
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) GetRegisteredInstance(account, region string, service types.Service, resourceType types.ResourceType, resourceID string) (*types.RegisteredInstance, error) {
	var inst types.RegisteredInstance
	key := registryKey(account, region, service, resourceType, resourceID)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistry)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("registered instance not found: %s", key)
		}
		return json.Unmarshal(data, &inst)
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListRegisteredInstancesByAccount scans the registry for every row whose
// key is partitioned under account, exploiting the partition-key prefix
// design called out in SPEC_FULL.md §9.
func (s *BoltStore) ListRegisteredInstancesByAccount(account string) ([]*types.RegisteredInstance, error) {
	prefix := account + "|"
	var out []*types.RegisteredInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistry)
		return b.ForEach(func(k, v []byte) error {
			if !strings.HasPrefix(string(k), prefix) {
				return nil
			}
			var inst types.RegisteredInstance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			out = append(out, &inst)
			return nil
		})
	})
	return out, err
}

// ListRegisteredInstancesByTarget returns every registered instance in one
// (account, region, service) scheduling partition.
func (s *BoltStore) ListRegisteredInstancesByTarget(account, region string, service types.Service) ([]*types.RegisteredInstance, error) {
	prefix := account + "|resource#" + region + "#" + string(service) + "#"
	var out []*types.RegisteredInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistry)
		return b.ForEach(func(k, v []byte) error {
			if !strings.HasPrefix(string(k), prefix) {
				return nil
			}
			var inst types.RegisteredInstance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			out = append(out, &inst)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListRegisteredInstances() ([]*types.RegisteredInstance, error) {
	var out []*types.RegisteredInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistry)
		return b.ForEach(func(k, v []byte) error {
			var inst types.RegisteredInstance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			out = append(out, &inst)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteRegisteredInstance(account, region string, service types.Service, resourceType types.ResourceType, resourceID string) error {
	key := registryKey(account, region, service, resourceType, resourceID)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistry)
		return b.Delete([]byte(key))
	})
}

// Schedules.

func (s *BoltStore) PutSchedule(sc *types.Schedule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedule)
		data, err := json.Marshal(sc)
		if err != nil {
			return err
		}
		return b.Put([]byte(sc.Name), data)
	})
}

func (s *BoltStore) GetSchedule(name string) (*types.Schedule, error) {
	var sc types.Schedule
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedule)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("schedule not found: %s", name)
		}
		return json.Unmarshal(data, &sc)
	})
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *BoltStore) ListSchedules() ([]*types.Schedule, error) {
	var out []*types.Schedule
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedule)
		return b.ForEach(func(k, v []byte) error {
			var sc types.Schedule
			if err := json.Unmarshal(v, &sc); err != nil {
				return err
			}
			out = append(out, &sc)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteSchedule(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchedule).Delete([]byte(name))
	})
}

// Periods.

func (s *BoltStore) PutPeriod(p *types.Period) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeriod)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.Name), data)
	})
}

func (s *BoltStore) GetPeriod(name string) (*types.Period, error) {
	var p types.Period
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeriod)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("period not found: %s", name)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListPeriods() ([]*types.Period, error) {
	var out []*types.Period
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPeriod)
		return b.ForEach(func(k, v []byte) error {
			var p types.Period
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeletePeriod(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPeriod).Delete([]byte(name))
	})
}

// Maintenance-window mirror.

func mwKey(account, region, name, windowID string) string {
	return account + "-" + region + "|" + name + ":" + windowID
}

func (s *BoltStore) PutMaintenanceWindow(w types.MaintenanceWindow) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMWMirror)
		data, err := json.Marshal(w)
		if err != nil {
			return err
		}
		return b.Put([]byte(mwKey(w.Account, w.Region, w.Name, w.WindowID)), data)
	})
}

func (s *BoltStore) GetMaintenanceWindow(account, region, name, windowID string) (*types.MaintenanceWindow, error) {
	var w types.MaintenanceWindow
	key := mwKey(account, region, name, windowID)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMWMirror)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("maintenance window not found: %s", key)
		}
		return json.Unmarshal(data, &w)
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *BoltStore) ListMaintenanceWindows(account, region string) ([]types.MaintenanceWindow, error) {
	prefix := account + "-" + region + "|"
	var out []types.MaintenanceWindow
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMWMirror)
		return b.ForEach(func(k, v []byte) error {
			if !strings.HasPrefix(string(k), prefix) {
				return nil
			}
			var w types.MaintenanceWindow
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			out = append(out, w)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteMaintenanceWindow(account, region, name, windowID string) error {
	key := mwKey(account, region, name, windowID)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMWMirror).Delete([]byte(key))
	})
}

// Certificate authority.

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get(caKey)
		if v == nil {
			return fmt.Errorf("certificate authority not found")
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put(caKey, data)
	})
}
