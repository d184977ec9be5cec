// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "internal")

// GetFilePath returns either the unmodified absolute path or the absolute path
// retrieved from a path relative to a base path
func GetFilePath(p, base string) string {
	if filepath.IsAbs(p) {
		return p
	}
	ret, _ := filepath.Abs(filepath.Join(base, p))
	return ret
}

// FileExists reports whether a regular file or directory exists at p
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// WithWorkDir runs fn with dir as the process working directory. The previous
// working directory is restored on every return path, including a panic in fn.
// The working directory is process-wide state: callers must serialize.
func WithWorkDir(dir string, fn func() error) (err error) {
	prev, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("failed to change working directory to %v: %w", dir, err)
	}
	log.Tracef("Changed working directory %v -> %v", prev, dir)

	defer func() {
		if cerr := os.Chdir(prev); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to restore working directory %v: %w", prev, cerr))
			return
		}
		log.Tracef("Restored working directory %v", prev)
	}()

	return fn()
}
