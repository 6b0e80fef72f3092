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

package controller

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtuned/mtuned/store"
)

func (c *Controller) setupRoutes() {
	c.svr.RegisterHandler("/metrics", promhttp.Handler())
	c.svr.RegisterGetRoute("/-/buildinfo", c.handleBuildInfo)
	c.svr.RegisterGetRoute("/-/model/{iface}", c.handleModel)
	c.svr.RegisterGetRoute("/-/prediction/{iface}", c.handlePrediction)
	c.svr.RegisterGetRoute("/-/history/{iface}", c.handleHistory)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, store.ErrNoData) {
		code = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (c *Controller) handleBuildInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.buildInfo)
}

func (c *Controller) handleModel(w http.ResponseWriter, r *http.Request) {
	iface := mux.Vars(r)["iface"]
	model, err := c.store.LoadModel(iface)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, model)
}

func (c *Controller) handlePrediction(w http.ResponseWriter, r *http.Request) {
	iface := mux.Vars(r)["iface"]
	prediction, err := c.store.LoadPrediction(iface)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, prediction)
}

func (c *Controller) handleHistory(w http.ResponseWriter, r *http.Request) {
	iface := mux.Vars(r)["iface"]
	records, err := c.store.History(iface)
	if err != nil {
		writeError(w, err)
		return
	}

	// limit 仅保留最近的 N 条
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "malformed limit " + s})
			return
		}
		if limit < len(records) {
			records = records[len(records)-limit:]
		}
	}
	writeJSON(w, records)
}
