package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jatinkumar-gitdev/happily-mart/cookies"
	"github.com/jatinkumar-gitdev/happily-mart/tokencache"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// state is the persisted cookie jar of the CLI. Session cookies are dropped
// when the process exits, the way a browser drops them on close.
type state struct {
	Cookies []cookies.Entry `yaml:"cookies"`
}

// localStoragePath returns the file backing local storage, next to the state file.
func localStoragePath(statePath string) string {
	return filepath.Join(filepath.Dir(statePath), "storage.yaml")
}

func loadState(path string, jar *cookies.Jar) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(err, "[loadState] read")
	}
	var st state
	if err := yaml.Unmarshal(data, &st); err != nil {
		return pkgerrors.Wrapf(err, "[loadState] parse %s", path)
	}
	jar.Load(st.Cookies)
	return nil
}

func saveState(path string, jar *cookies.Jar) error {
	data, err := yaml.Marshal(state{Cookies: jar.Entries()})
	if err != nil {
		return pkgerrors.Wrap(err, "[saveState] marshal")
	}
	return tokencache.WriteFileAtomic(path, data)
}
