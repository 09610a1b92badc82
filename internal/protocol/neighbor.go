package protocol

// Neighbor is one directly reachable mesh node.
type Neighbor struct {
	Address      string `cbor:"1,keyasint" json:"address"`
	HardwareAddr string `cbor:"2,keyasint,omitempty" json:"hardware_addr,omitempty"`
	State        string `cbor:"3,keyasint,omitempty" json:"state,omitempty"`
	Interface    string `cbor:"4,keyasint,omitempty" json:"interface,omitempty"`
}

// Addresses returns the neighbor addresses in order.
func Addresses(neighbors []Neighbor) []string {
	out := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, n.Address)
	}
	return out
}
