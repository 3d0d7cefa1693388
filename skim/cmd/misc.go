package cmd

import (
	"bufio"
	"io"
	"os"
	"strings"

	"path/filepath"
	"sort"

	"github.com/iafan/cwalk"
	"github.com/klauspost/pgzip"
	colorable "github.com/mattn/go-colorable"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/shenwei356/go-logging"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
)

var log = newLogger()

func newLogger() *logging.Logger {
	l := logging.MustGetLogger("skim")
	backend := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
	formatter := logging.MustStringFormatter(`%{color}[%{level:.4s}]%{color:reset} %{message}`)
	backendFormatter := logging.NewBackendFormatter(backend, formatter)
	logging.SetBackend(backendFormatter)
	logging.SetLevel(logging.INFO, "skim")
	return l
}

// addLog raises the level when verbose is set and, when logFile is
// non-empty, redirects logging to logFile in append mode instead of stderr.
func addLog(logFile string, verbose bool) {
	if verbose {
		logging.SetLevel(logging.DEBUG, "skim")
	}
	if logFile == "" {
		return
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	checkError(errors.Wrap(err, logFile))
	backend := logging.NewLogBackend(f, "", 0)
	formatter := logging.MustStringFormatter(`[%{level:.4s}] %{time:2006-01-02 15:04:05} %{message}`)
	logging.SetBackend(logging.NewBackendFormatter(backend, formatter))
}

// checkError logs err (if non-nil) and exits the process with status 1,
// matching the fatal-at-startup policy for configuration errors.
func checkError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func getFlagString(cmd *cobra.Command, flag string) string {
	v, err := cmd.Flags().GetString(flag)
	checkError(errors.Wrapf(err, "flag --%s", flag))
	return v
}

func getFlagInt(cmd *cobra.Command, flag string) int {
	v, err := cmd.Flags().GetInt(flag)
	checkError(errors.Wrapf(err, "flag --%s", flag))
	return v
}

func getFlagUint64(cmd *cobra.Command, flag string) uint64 {
	v, err := cmd.Flags().GetUint64(flag)
	checkError(errors.Wrapf(err, "flag --%s", flag))
	return v
}

func getFlagFloat64(cmd *cobra.Command, flag string) float64 {
	v, err := cmd.Flags().GetFloat64(flag)
	checkError(errors.Wrapf(err, "flag --%s", flag))
	return v
}

func getFlagBool(cmd *cobra.Command, flag string) bool {
	v, err := cmd.Flags().GetBool(flag)
	checkError(errors.Wrapf(err, "flag --%s", flag))
	return v
}

// expandPath resolves a leading ~ against the user's home directory.
func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	checkError(errors.Wrap(err, path))
	return expanded
}

// checkDirExists returns an error if dir does not exist or is not a
// directory.
func checkDirExists(dir string) error {
	isDir, err := pathutil.IsDir(dir)
	if err != nil {
		return err
	}
	if !isDir {
		return errors.Errorf("not a directory: %s", dir)
	}
	return nil
}

// ensureDirExists creates dir (and any missing parents) if it does not
// already exist.
func ensureDirExists(dir string) error {
	existed, err := pathutil.Exists(dir)
	if err != nil {
		return err
	}
	if existed {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// scanReferenceDir walks dir and returns the full paths of every regular
// file under it, in sorted order (so file-entry order is deterministic
// across runs, matching the RLE build's sequential-index requirement).
func scanReferenceDir(dir string) []string {
	var paths []string
	err := cwalk.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		paths = append(paths, filepath.Join(dir, path))
		return nil
	})
	checkError(errors.Wrap(err, dir))
	sort.Strings(paths)
	return paths
}

// outStream opens path for writing, gzip-compressing the stream when
// path ends in .gz. Callers must flush the returned bufio.Writer, then
// close the pgzip.Writer (if non-nil), then close the returned file.
func outStream(path string) (*bufio.Writer, *pgzip.Writer, io.WriteCloser) {
	f, err := os.Create(path)
	checkError(errors.Wrap(err, path))

	if strings.HasSuffix(path, ".gz") {
		gw := pgzip.NewWriter(f)
		return bufio.NewWriter(gw), gw, f
	}
	return bufio.NewWriter(f), nil, f
}

// inStream opens path for reading, transparently decompressing a
// trailing .gz extension.
func inStream(path string) (*bufio.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		gr, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return bufio.NewReader(gr), multiCloser{gr, f}, nil
	}
	return bufio.NewReader(f), f, nil
}

type multiCloser struct {
	first, second io.Closer
}

func (m multiCloser) Close() error {
	if err := m.first.Close(); err != nil {
		return err
	}
	return m.second.Close()
}
