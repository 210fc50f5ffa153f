package backend

import (
	"github.com/localdns/localdns/pkg/cache"
	"github.com/localdns/localdns/pkg/db"
	"github.com/localdns/localdns/pkg/model"
	"github.com/localdns/localdns/pkg/upstream"
	"github.com/sirupsen/logrus"
)

type backend struct {
	db       db.Database
	cache    *cache.Cache
	resolver *upstream.Resolver
}

func New(database db.Database, recordCache *cache.Cache, resolver *upstream.Resolver) Backend {
	return &backend{
		db:       database,
		cache:    recordCache,
		resolver: resolver,
	}
}

func (b *backend) CreateRecord(input model.RecordRequest) (db.Record, error) {
	record, err := b.db.CreateRecord(input)
	if err != nil {
		return db.Record{}, err
	}

	b.reloadCache()
	return record, nil
}

func (b *backend) GetRecord(id uint) (db.Record, error) {
	return b.db.GetRecord(id)
}

func (b *backend) ListRecords() ([]db.Record, error) {
	return b.db.ListRecords()
}

func (b *backend) UpdateRecord(id uint, patch model.RecordPatch) (db.Record, error) {
	record, err := b.db.UpdateRecord(id, patch)
	if err != nil {
		return db.Record{}, err
	}

	b.reloadCache()
	return record, nil
}

func (b *backend) DeleteRecord(id uint) error {
	if err := b.db.DeleteRecord(id); err != nil {
		return err
	}

	b.reloadCache()
	return nil
}

func (b *backend) RecentLogs(limit int) ([]db.QueryLog, error) {
	return b.db.RecentLogs(limit)
}

func (b *backend) ListSettings() ([]db.Setting, error) {
	return b.db.ListSettings()
}

func (b *backend) SetSetting(key, value string) error {
	if err := b.db.SetSetting(key, value); err != nil {
		return err
	}

	switch key {
	case model.SettingUpstreamPrimary, model.SettingUpstreamSecondary, model.SettingUpstreamTimeoutMS:
		b.resolver.SetConfig(UpstreamConfig(b.db))
	}

	return nil
}

// reloadCache makes a committed mutation visible to the query path. A
// failed reload keeps the previous snapshot; the mutation is not rolled
// back and the next successful reload converges.
func (b *backend) reloadCache() {
	if err := b.cache.Reload(); err != nil {
		logrus.Errorf("record cache reload after mutation failed: %v", err)
	}
}

// UpstreamConfig derives the forwarder configuration from the stored
// settings, falling back to the seeded defaults for missing keys.
func UpstreamConfig(database db.Database) upstream.Config {
	defaults := model.DefaultSettings()

	get := func(key string) string {
		value, err := database.GetSetting(key)
		if err != nil {
			logrus.Warnf("could not read setting %s, using default %q: %v", key, defaults[key], err)
			return defaults[key]
		}
		return value
	}

	return upstream.ParseConfig(
		get(model.SettingUpstreamPrimary),
		get(model.SettingUpstreamSecondary),
		get(model.SettingUpstreamTimeoutMS),
	)
}
