package registry

import (
	"strconv"
)

type (
	// Document is the chain registry keyed by decimal chain id.
	Document map[string]ChainEntry

	ChainEntry struct {
		Clients   map[string]Client `json:"clients"`
		Explorers []Explorer        `json:"explorers,omitempty"`
	}

	// Client holds the canonical infrastructure of one light client on a chain.
	Client struct {
		DispatcherAddr       string `json:"dispatcherAddr"`
		UniversalChannelAddr string `json:"universalChannelAddr"`
		UniversalChannelID   string `json:"universalChannelId"`
		CanonConnFrom        string `json:"canonConnFrom"`
		CanonConnTo          string `json:"canonConnTo"`
	}

	Explorer struct {
		URL    string `json:"url"`
		APIURL string `json:"apiUrl"`
	}
)

func (d Document) entry(chainID uint64) (ChainEntry, bool) {
	e, ok := d[strconv.FormatUint(chainID, 10)]
	return e, ok
}

// ChainIDs returns the chain ids present in the registry. Keys that are not
// decimal numbers are skipped.
func (d Document) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(d))
	for key := range d {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
