// Copyright 2025 The mtuned Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

const (
	historyDoc    = "history.json"
	modelDoc      = "model.json"
	predictionDoc = "prediction.json"
)

type Config struct {
	// DataDir 数据目录 每个接口一个子目录
	DataDir string `config:"dataDir"`

	// MaxHistory 单接口历史记录窗口上限 超出后裁剪最旧的记录
	MaxHistory int `config:"maxHistory"`
}

func (c *Config) Validate() {
	if c.DataDir == "" {
		c.DataDir = "/var/lib/mtuned"
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 1000
	}
}

// envelope 文档信封 checksum 为 payload 的 xxhash
//
// 读取时先校验 checksum 再解析 payload 避免消费被截断或篡改的文档
type envelope struct {
	Checksum uint64          `json:"checksum"`
	Payload  json.RawMessage `json:"payload"`
}

// FileStore 文件系统实现 写入采用 write-temp + rename 保证原子替换
//
// 同接口的 read-modify-write 由进程内互斥锁串行化
// 跨进程的写写冲突由探测层的接口锁保证不会发生
type FileStore struct {
	cfg Config

	mut    sync.Mutex
	ifaces map[string]*sync.Mutex
}

func NewFileStore(cfg Config) (*FileStore, error) {
	cfg.Validate()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	return &FileStore{
		cfg:    cfg,
		ifaces: make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileStore) AppendHistory(iface string, record Record) error {
	mut := s.ifaceMut(iface)
	mut.Lock()
	defer mut.Unlock()

	var records []Record
	err := s.readDoc(iface, historyDoc, &records)
	if err != nil && !errors.Is(err, ErrNoData) {
		return err
	}

	records = append(records, record)
	if len(records) > s.cfg.MaxHistory {
		records = records[len(records)-s.cfg.MaxHistory:]
	}
	return s.writeDoc(iface, historyDoc, records)
}

func (s *FileStore) History(iface string) ([]Record, error) {
	mut := s.ifaceMut(iface)
	mut.Lock()
	defer mut.Unlock()

	var records []Record
	if err := s.readDoc(iface, historyDoc, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(ErrNoData, "history of %s", iface)
	}
	return records, nil
}

func (s *FileStore) SaveModel(iface string, model Model) error {
	mut := s.ifaceMut(iface)
	mut.Lock()
	defer mut.Unlock()
	return s.writeDoc(iface, modelDoc, model)
}

func (s *FileStore) LoadModel(iface string) (Model, error) {
	mut := s.ifaceMut(iface)
	mut.Lock()
	defer mut.Unlock()

	var model Model
	if err := s.readDoc(iface, modelDoc, &model); err != nil {
		return Model{}, err
	}
	return model, nil
}

func (s *FileStore) SavePrediction(iface string, prediction Prediction) error {
	mut := s.ifaceMut(iface)
	mut.Lock()
	defer mut.Unlock()
	return s.writeDoc(iface, predictionDoc, prediction)
}

func (s *FileStore) LoadPrediction(iface string) (Prediction, error) {
	mut := s.ifaceMut(iface)
	mut.Lock()
	defer mut.Unlock()

	var prediction Prediction
	if err := s.readDoc(iface, predictionDoc, &prediction); err != nil {
		return Prediction{}, err
	}
	return prediction, nil
}

func (s *FileStore) ifaceMut(iface string) *sync.Mutex {
	s.mut.Lock()
	defer s.mut.Unlock()

	mut, ok := s.ifaces[iface]
	if !ok {
		mut = &sync.Mutex{}
		s.ifaces[iface] = mut
	}
	return mut
}

func (s *FileStore) docPath(iface, doc string) string {
	// iface 来自配置或系统接口名 Base 防御路径穿越
	return filepath.Join(s.cfg.DataDir, filepath.Base(iface), doc)
}

func (s *FileStore) readDoc(iface, doc string, to any) error {
	b, err := os.ReadFile(s.docPath(iface, doc))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNoData, "%s of %s", doc, iface)
		}
		return errors.Wrapf(err, "read %s of %s", doc, iface)
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		storeErrors.WithLabelValues("read").Inc()
		return errors.Wrapf(ErrCorrupted, "%s of %s: %v", doc, iface, err)
	}
	if xxhash.Sum64(env.Payload) != env.Checksum {
		storeErrors.WithLabelValues("read").Inc()
		return errors.Wrapf(ErrCorrupted, "%s of %s: checksum mismatch", doc, iface)
	}
	if err := json.Unmarshal(env.Payload, to); err != nil {
		storeErrors.WithLabelValues("read").Inc()
		return errors.Wrapf(ErrCorrupted, "%s of %s: %v", doc, iface, err)
	}
	return nil
}

func (s *FileStore) writeDoc(iface, doc string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s of %s", doc, iface)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	enc := json.NewEncoder(buf)
	if err := enc.Encode(envelope{Checksum: xxhash.Sum64(raw), Payload: raw}); err != nil {
		return errors.Wrapf(err, "encode %s of %s", doc, iface)
	}

	path := s.docPath(iface, doc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create interface dir")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		storeErrors.WithLabelValues("write").Inc()
		return errors.Wrapf(err, "write %s of %s", doc, iface)
	}
	if err := os.Rename(tmp, path); err != nil {
		storeErrors.WithLabelValues("write").Inc()
		return errors.Wrapf(err, "replace %s of %s", doc, iface)
	}
	return nil
}
