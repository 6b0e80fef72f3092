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
	"sync"

	"github.com/pkg/errors"
)

// MemStore 内存实现 供测试与一次性调优使用
type MemStore struct {
	mut         sync.Mutex
	histories   map[string][]Record
	models      map[string]Model
	predictions map[string]Prediction
}

func NewMemStore() *MemStore {
	return &MemStore{
		histories:   make(map[string][]Record),
		models:      make(map[string]Model),
		predictions: make(map[string]Prediction),
	}
}

func (s *MemStore) AppendHistory(iface string, record Record) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.histories[iface] = append(s.histories[iface], record)
	return nil
}

func (s *MemStore) History(iface string) ([]Record, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	records, ok := s.histories[iface]
	if !ok || len(records) == 0 {
		return nil, errors.Wrapf(ErrNoData, "history of %s", iface)
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemStore) SaveModel(iface string, model Model) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.models[iface] = model
	return nil
}

func (s *MemStore) LoadModel(iface string) (Model, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	model, ok := s.models[iface]
	if !ok {
		return Model{}, errors.Wrapf(ErrNoData, "model of %s", iface)
	}
	return model, nil
}

func (s *MemStore) SavePrediction(iface string, prediction Prediction) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.predictions[iface] = prediction
	return nil
}

func (s *MemStore) LoadPrediction(iface string) (Prediction, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	prediction, ok := s.predictions[iface]
	if !ok {
		return Prediction{}, errors.Wrapf(ErrNoData, "prediction of %s", iface)
	}
	return prediction, nil
}
