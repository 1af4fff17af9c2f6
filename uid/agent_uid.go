// Package uid provides AgentUid, the stable external agent identifier, and
// AgentUidMap, the lock-free-on-distinct-keys UID-to-value index used by the
// resource manager to locate live agents.
package uid

import "fmt"

// AgentUid is a globally-unique, reuse-aware agent identifier. It survives
// relocation (handle changes); it does not survive removal of the agent it
// names, only the index does, recycled with an incremented Reused.
type AgentUid struct {
	Index  uint32
	Reused uint32
}

// New builds an AgentUid with Reused set to zero, mirroring the original
// single-argument constructor (agent_uid.h).
func New(index uint32) AgentUid {
	return AgentUid{Index: index, Reused: 0}
}

// Sentinel returns the "none" UID: both fields at their maximum value.
func Sentinel() AgentUid {
	return AgentUid{Index: ^uint32(0), Reused: ^uint32(0)}
}

// IsSentinel reports whether u is the "none" UID.
func (u AgentUid) IsSentinel() bool {
	return u == Sentinel()
}

// Equal reports whether two UIDs name the same agent lifetime.
func (u AgentUid) Equal(other AgentUid) bool {
	return u.Index == other.Index && u.Reused == other.Reused
}

// Less orders UIDs by Reused first, then Index — matching agent_uid.h's
// operator<, used only for deterministic test/debug output, never for
// identity.
func (u AgentUid) Less(other AgentUid) bool {
	if u.Reused != other.Reused {
		return u.Reused < other.Reused
	}
	return u.Index < other.Index
}

// Add returns a UID with Index shifted by delta and Reused unchanged,
// mirroring agent_uid.h's operator+(int).
func (u AgentUid) Add(delta int64) AgentUid {
	return AgentUid{Index: uint32(int64(u.Index) + delta), Reused: u.Reused}
}

// Sub returns a UID with Index shifted down by delta and Reused unchanged.
func (u AgentUid) Sub(delta int64) AgentUid {
	return u.Add(-delta)
}

// Uint64 converts the UID to a single 64-bit integer, (reused<<32)|index,
// for hashing and printing.
func (u AgentUid) Uint64() uint64 {
	return (uint64(u.Reused) << 32) | uint64(u.Index)
}

// String renders the UID as "<index>-<reused>".
func (u AgentUid) String() string {
	return fmt.Sprintf("%d-%d", u.Index, u.Reused)
}

// MarshalText implements encoding.TextMarshaler for the core's persistence
// streamer hook (§6): each data-bearing type exposes a versioned,
// serialization-library-agnostic textual form.
func (u AgentUid) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *AgentUid) UnmarshalText(text []byte) error {
	var idx, reused uint32
	if _, err := fmt.Sscanf(string(text), "%d-%d", &idx, &reused); err != nil {
		return fmt.Errorf("uid: invalid AgentUid text %q: %w", text, err)
	}
	u.Index = idx
	u.Reused = reused
	return nil
}
