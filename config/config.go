/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config holds the configuration struct the external CLI loader populates
// before calling into the core (spec §6 "core reads only a configuration struct
// pre-populated by the external CLI loader; the core exposes no CLI of its own").
package config

import (
	"fmt"

	"github.com/antmuse/AntEngine-sub001/internal/corelog"
)

// TLS carries the subset of crypto/tls.Config spec §6's "TLS context parameters"
// names: certificate/key/CA file paths plus the handful of knobs worth exposing to an
// operator rather than hardcoding.
type TLS struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// Log carries the log level/output spec §6 names as the fourth recognized option.
type Log struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"` // "stderr", "stdout", or a file path
}

// Config is the complete struct spec §6 recognizes: process count, shared memory size,
// TLS context parameters, log level/output. Every other engine behavior (size classes,
// min_shift, poller family, ...) is a compiled-in constant or a constructor parameter,
// not something the external CLI loader is asked to supply.
type Config struct {
	// ProcessCount is the number of worker processes the supervisor keeps alive (spec
	// §4.9 "determine process count from config").
	ProcessCount int `mapstructure:"process_count"`

	// SharedMemorySize is the byte size of the mmap'd region backing EngineData and the
	// slab pool (spec §6 "a file- or name-backed mapped region of configured size").
	SharedMemorySize int `mapstructure:"shared_memory_size"`

	// SharedMemoryPath names the backing file for the shared region; a fresh temp path
	// is used when empty.
	SharedMemoryPath string `mapstructure:"shared_memory_path"`

	TLS TLS `mapstructure:"tls"`
	Log Log `mapstructure:"log"`
}

// Default returns a Config with the engine's documented defaults, used as the base a
// loaded file/environment overlay merges onto.
func Default() Config {
	return Config{
		ProcessCount:     1,
		SharedMemorySize: 16 << 20, // 16 MiB
		Log: Log{
			Level:  "info",
			Output: "stderr",
		},
	}
}

// Validate reports the first structural problem found, before any component acts on
// the struct.
func (c Config) Validate() error {
	if c.ProcessCount < 1 {
		return fmt.Errorf("config: process_count must be >= 1, got %d", c.ProcessCount)
	}
	if c.SharedMemorySize < 1<<16 {
		return fmt.Errorf("config: shared_memory_size must be >= 65536, got %d", c.SharedMemorySize)
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("config: tls.enabled requires cert_file and key_file")
	}
	return nil
}

// LogLevel parses the Log.Level field into corelog's closed Level enum.
func (c Config) LogLevel() corelog.Level { return corelog.ParseLevel(c.Log.Level) }
