// Package checksumstore persists whole-file reference digests.
package checksumstore

import (
	"context"
	"encoding/json"
	"strings"

	"reliaudit/internal/errs"
	"reliaudit/internal/ports"
)

const kvPrefix = "checksum:"

// KVStore keeps one JSON document per tracked file in a PrefixCache.
type KVStore struct {
	cache ports.PrefixCache
}

var _ ports.ChecksumStore = (*KVStore)(nil)

func NewKVStore(cache ports.PrefixCache) *KVStore {
	return &KVStore{cache: cache}
}

func (s *KVStore) Load(ctx context.Context, file string) (ports.FileChecksumRecord, error) {
	raw, found, err := s.cache.Get(ctx, kvPrefix+file)
	if err != nil {
		return ports.FileChecksumRecord{}, errs.Wrapf(err, "load checksum reference for %s", file)
	}
	if !found {
		return ports.FileChecksumRecord{}, errs.Wrapf(ports.ErrChecksumNotFound, "file=%s", file)
	}

	var record ports.FileChecksumRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return ports.FileChecksumRecord{}, &errs.EncodingError{Field: file, Err: err}
	}
	return record, nil
}

func (s *KVStore) Save(ctx context.Context, record ports.FileChecksumRecord) error {
	if strings.TrimSpace(record.File) == "" {
		return errs.Invalid("file", "is required")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return &errs.EncodingError{Field: record.File, Err: err}
	}
	if err := s.cache.Set(ctx, kvPrefix+record.File, string(raw), 0); err != nil {
		return errs.Wrapf(err, "save checksum reference for %s", record.File)
	}
	return nil
}

func (s *KVStore) List(ctx context.Context) ([]ports.FileChecksumRecord, error) {
	keys, err := s.cache.Keys(ctx, kvPrefix)
	if err != nil {
		return nil, errs.Wrap(err, "list checksum references")
	}

	records := make([]ports.FileChecksumRecord, 0, len(keys))
	for _, key := range keys {
		record, err := s.Load(ctx, strings.TrimPrefix(key, kvPrefix))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
