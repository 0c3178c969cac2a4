// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kernelci/logparser/pkg/status"
)

var (
	compilerRe      = regexp.MustCompile(`^([\w\s?]+)\sversion\s(\d+\.\d+(?:\.\d+)?(?:-\d+)?)`)
	kernelVersionRe = regexp.MustCompile(`^(\d+\.\d+(?:\.\d+)?)`)
	kernelRCRe      = regexp.MustCompile(`^(\d+\.\d+(?:\.\d+)?-rc\d*)`)
)

// Error is a metadata failure carrying the status code to report.
type Error struct {
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// meta mirrors the keys of build.meta the pipeline cares about.
type meta struct {
	Job                 *string `json:"job"`
	Kernel              *string `json:"kernel"`
	Defconfig           *string `json:"defconfig"`
	DefconfigFull       string  `json:"defconfig_full"`
	KconfigFragments    string  `json:"kconfig_fragments"`
	Arch                string  `json:"arch"`
	BuildLog            string  `json:"build_log"`
	BuildResult         string  `json:"build_result"`
	FileServerResource  string  `json:"file_server_resource"`
	FileServerURL       string  `json:"file_server_url"`
	GitURL              string  `json:"git_url"`
	GitBranch           string  `json:"git_branch"`
	GitCommit           string  `json:"git_commit"`
	GitDescribe         string  `json:"git_describe"`
	GitDescribeV        string  `json:"git_describe_v"`
	CompilerVersion     string  `json:"compiler_version"`
	CompilerVersionFull string  `json:"compiler_version_full"`
	Version             string  `json:"version"`
}

// ParseBuildData builds a Build from the content of a build.meta file.
// job and kernel are used when the metadata does not carry them.
func ParseBuildData(data []byte, job, kernel, buildDir string) (*Build, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		if err == nil {
			err = errors.New("null document")
		}
		return nil, &Error{Code: status.InternalError, Msg: "JSON data is not a dictionary", Err: err}
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &Error{Code: status.InternalError, Msg: "invalid build data", Err: err}
	}
	if m.Defconfig == nil {
		return nil, &Error{
			Code: status.InternalError,
			Msg:  fmt.Sprintf("Missing mandatory key 'defconfig' in build data (job: %s, kernel: %s)", job, kernel),
		}
	}

	b := &Build{
		Job:                job,
		Kernel:             kernel,
		Defconfig:          *m.Defconfig,
		DefconfigFull:      DefconfigFull(*m.Defconfig, m.DefconfigFull, m.KconfigFragments),
		KconfigFragments:   m.KconfigFragments,
		Arch:               m.Arch,
		Dirname:            buildDir,
		BuildLog:           m.BuildLog,
		Status:             StatusUnknown,
		FileServerResource: m.FileServerResource,
		FileServerURL:      m.FileServerURL,
		GitURL:             m.GitURL,
		GitBranch:          m.GitBranch,
		GitCommit:          m.GitCommit,
		GitDescribe:        m.GitDescribe,
		GitDescribeV:       m.GitDescribeV,
		Version:            "1.0",
	}
	if m.Job != nil {
		b.Job = *m.Job
	}
	if m.Kernel != nil {
		b.Kernel = *m.Kernel
	}
	if m.BuildResult != "" {
		b.Status = Status(m.BuildResult)
	}
	if m.Version != "" {
		b.Version = m.Version
	}
	b.KernelVersion = KernelVersion(m.GitDescribeV, m.GitDescribe)

	full := m.CompilerVersionFull
	if full == "" {
		full = m.CompilerVersion
	}
	c := ExtractCompiler(full)
	b.Compiler, b.CompilerVersion, b.CompilerVersionExt, b.CompilerVersionFull = c.Name, c.Version, c.VersionExt, c.VersionFull
	return b, nil
}

// ReadBuildData reads and parses the metadata file in buildDir. Failures
// are recorded in errs and reported as a nil build.
func ReadBuildData(buildDir, job, kernel string, errs *status.Errors) *Build {
	path := filepath.Join(buildDir, MetaFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			errs.Addf(status.InternalError, "No build data file found for '%s-%s' (%s)", job, kernel, filepath.Base(buildDir))
		} else {
			errs.Addf(status.InternalError, "Error reading build data for '%s-%s' (%s)", job, kernel, filepath.Base(buildDir))
		}
		return nil
	}
	b, err := ParseBuildData(data, job, kernel, buildDir)
	if err != nil {
		code := status.InternalError
		var berr *Error
		if errors.As(err, &berr) {
			code = berr.Code
		}
		errs.Addf(code, "Error parsing build data for '%s-%s' (%s): %v", job, kernel, filepath.Base(buildDir), err)
		return nil
	}
	return b
}

// DefconfigFull returns the full defconfig name. An explicit value wins,
// otherwise the fragment file name (without .config) is appended.
func DefconfigFull(defconfig, defconfigFull, fragments string) string {
	if defconfigFull != "" {
		return defconfigFull
	}
	if fragments != "" {
		frag := strings.TrimSuffix(filepath.Base(fragments), ".config")
		if frag != "" && !strings.Contains(defconfig, frag) {
			return defconfig + "+" + frag
		}
	}
	return defconfig
}

// Compiler is the compiler description extracted from a version string.
type Compiler struct {
	Name        string
	Version     string
	VersionExt  string
	VersionFull string
}

// ExtractCompiler parses strings like "gcc version 4.7.3 (Ubuntu 4.7.3-1)".
func ExtractCompiler(full string) Compiler {
	full = strings.TrimSpace(full)
	c := Compiler{VersionFull: full}
	if full == "" {
		return c
	}
	if m := compilerRe.FindStringSubmatch(full); m != nil {
		c.Name = strings.TrimSpace(m[1])
		c.Version = strings.TrimSpace(m[2])
		c.VersionExt = c.Name + " " + c.Version
	}
	return c
}

// KernelVersion extracts the version number from git describe output,
// preferring describeV.
func KernelVersion(describeV, describe string) string {
	s := describeV
	if s == "" {
		s = describe
	}
	s = strings.TrimPrefix(s, "v")
	if s == "" {
		return ""
	}
	re := kernelVersionRe
	if strings.Contains(s, "rc") {
		re = kernelRCRe
	}
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}
