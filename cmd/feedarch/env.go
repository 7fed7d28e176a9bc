// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env is the process environment read once at startup and injected into
// component constructors.
type Env struct {
	RawBucket    string        // RAW_BUCKET
	ParsedBucket string        // PARSED_BUCKET
	RedisHost    string        // HUEY_REDIS_HOST
	Workers      int           // HUEY_WORKERS
	WorkerType   string        // HUEY_WORKER_TYPE
	Backoff      float64       // HUEY_BACKOFF (broker retry multiplier)
	MaxDelay     time.Duration // HUEY_MAX_DELAY (broker retry ceiling)
	FetchExpires time.Duration // HUEY_FETCH_CONFIG_EXPIRES
}

// loadEnv reads the environment. Which fields are required depends on the
// command; callers validate with the require* helpers.
func loadEnv() Env {
	return Env{
		RawBucket:    os.Getenv("RAW_BUCKET"),
		ParsedBucket: os.Getenv("PARSED_BUCKET"),
		RedisHost:    getEnv("HUEY_REDIS_HOST", "localhost"),
		Workers:      getEnvInt("HUEY_WORKERS", 1),
		WorkerType:   getEnv("HUEY_WORKER_TYPE", "thread"),
		Backoff:      getEnvFloat("HUEY_BACKOFF", 1.15),
		MaxDelay:     time.Duration(getEnvFloat("HUEY_MAX_DELAY", 10)) * time.Second,
		FetchExpires: time.Duration(getEnvFloat("HUEY_FETCH_CONFIG_EXPIRES", 5) * float64(time.Second)),
	}
}

// requireRawBucket fails when RAW_BUCKET is unset.
func (e Env) requireRawBucket() (string, error) {
	if e.RawBucket == "" {
		return "", fmt.Errorf("RAW_BUCKET not set in environment")
	}
	return e.RawBucket, nil
}

// requireParsedBucket fails when PARSED_BUCKET is unset.
func (e Env) requireParsedBucket() (string, error) {
	if e.ParsedBucket == "" {
		return "", fmt.Errorf("PARSED_BUCKET not set in environment")
	}
	return e.ParsedBucket, nil
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}
