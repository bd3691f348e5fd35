// internal/store/workingset.go
package store

import (
	"encoding/json"
	"fmt"
	"sort"
)

// loadFunc fetches the committed bytes of a namespace. ok is false when the
// namespace has never been written.
type loadFunc func(namespace string) (data []byte, ok bool, err error)

// workingSet is the Tx handed to Update and View callbacks. Reads fall through
// to the backend once per namespace; writes are buffered until commit.
type workingSet struct {
	load     loadFunc
	readOnly bool
	fetched  map[string][]byte
	dirty    map[string][]byte
}

func newWorkingSet(load loadFunc, readOnly bool) *workingSet {
	return &workingSet{
		load:     load,
		readOnly: readOnly,
		fetched:  make(map[string][]byte),
		dirty:    make(map[string][]byte),
	}
}

func (ws *workingSet) Load(namespace string, dst any) error {
	data, ok := ws.dirty[namespace]
	if !ok {
		data, ok = ws.fetched[namespace]
	}
	if !ok {
		var err error
		data, ok, err = ws.load(namespace)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", namespace, err)
		}
		if ok {
			ws.fetched[namespace] = data
		}
	}
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", namespace, err)
	}
	return nil
}

func (ws *workingSet) Save(namespace string, v any) error {
	if ws.readOnly {
		return ErrReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", namespace, err)
	}
	ws.dirty[namespace] = data
	return nil
}

// changed lists the namespaces written during the transaction in a stable order.
func (ws *workingSet) changed() []string {
	names := make([]string, 0, len(ws.dirty))
	for ns := range ws.dirty {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}
