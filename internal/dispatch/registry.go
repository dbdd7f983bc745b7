package dispatch

import (
	"sync"

	"github.com/airtap/ratectl/internal/station"
	"github.com/airtap/ratectl/internal/util"
)

// StationFactory builds the state for a station seen for the first time on
// a given radio.
type StationFactory func(radio, mac string) *station.Station

// Registry is the address-keyed station store for one access point
// connection. Disassociated stations are retained as dormant records so a
// paused control task can be resumed on reassociation.
type Registry struct {
	mu       sync.RWMutex
	stations map[string]*station.Station
	factory  StationFactory
}

func NewRegistry(factory StationFactory) *Registry {
	return &Registry{
		stations: make(map[string]*station.Station),
		factory:  factory,
	}
}

// Get returns the station for mac, or nil when unknown.
func (r *Registry) Get(mac string) *station.Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stations[util.CanonicalMAC(mac)]
}

// GetOrCreate returns the station for mac, creating it through the factory
// on first sight. created reports whether a new record was made.
func (r *Registry) GetOrCreate(radio, mac string) (sta *station.Station, created bool) {
	key := util.CanonicalMAC(mac)

	r.mu.Lock()
	defer r.mu.Unlock()
	if sta := r.stations[key]; sta != nil {
		return sta, false
	}
	sta = r.factory(radio, key)
	r.stations[key] = sta
	return sta, true
}

// Len returns the number of known stations, dormant ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}

// All snapshots the station set.
func (r *Registry) All() []*station.Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*station.Station, 0, len(r.stations))
	for _, sta := range r.stations {
		all = append(all, sta)
	}
	return all
}

// StopAll terminates every station's control task; used at shutdown.
func (r *Registry) StopAll() {
	for _, sta := range r.All() {
		sta.StopRateControl()
	}
}
