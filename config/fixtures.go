package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/address"
)

// Fixture is one record used to seed the memory ledger for rehearsals.
type Fixture struct {
	Generation string         `yaml:"generation"`
	Owner      string         `yaml:"owner"`
	Key        string         `yaml:"key"`
	Payload    map[string]any `yaml:"payload"`
}

type fixtureFile struct {
	Records []Fixture `yaml:"records"`
}

// LoadFixtures reads a fixture file:
//
//	records:
//	  - generation: order
//	    owner: 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin
//	    key: 0102030405060708090a0b0c0d0e0f10
//	    payload:
//	      orderTime: 1700000000
func LoadFixtures(path string) ([]Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}

	var f fixtureFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	for i, fx := range f.Records {
		if fx.Generation == "" {
			return nil, fmt.Errorf("fixture %d: %w", i, migrator.ErrInvalidGeneration)
		}
		if _, _, err := fx.Keys(); err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
	}
	return f.Records, nil
}

// Keys decodes the fixture's owner and record key.
func (f Fixture) Keys() (migrator.OwnerKey, migrator.RecordKey, error) {
	owner, err := address.ParseOwner(f.Owner)
	if err != nil {
		return nil, nil, err
	}
	key, err := address.ParseRecordKey(f.Key)
	if err != nil {
		return nil, nil, err
	}
	return owner, key, nil
}
