package index

// PrimaryIndex is the always-present index 0 of every collection. Its
// fields are always ["_id"], and all mutation hooks are no-ops: the
// collection itself maintains the key -> marker map that actually serves
// primary lookups, exactly as the primary index does in the original
// engine this was distilled from.
type PrimaryIndex struct {
	BaseCleanup
}

// NewPrimaryIndex returns the singleton-shaped primary index.
func NewPrimaryIndex() *PrimaryIndex {
	return &PrimaryIndex{}
}

func (p *PrimaryIndex) Insert(doc Document, ref DocRef) Result           { return ok() }
func (p *PrimaryIndex) Update(newDoc, oldDoc Document, ref DocRef) Result { return ok() }
func (p *PrimaryIndex) Remove(doc Document, ref DocRef) Result           { return ok() }
func (p *PrimaryIndex) IID() uint64                                      { return 0 }

func (p *PrimaryIndex) Describe() Description {
	return Description{
		ID:     0,
		Type:   "primary",
		Unique: true,
		Fields: []string{"_id"},
	}
}
