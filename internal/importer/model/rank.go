package model

// MediatorRank is a scheduling priority. Lower ranks are preferred so that referential data (definitions) lands
// before the data referencing it (instances, then incidents and variables).
type MediatorRank int

const (
	RankDefinition MediatorRank = iota
	RankInstance
	RankInstanceDetail
	RankIdentity
)

func (r MediatorRank) String() string {
	switch r {
	case RankDefinition:
		return "definition"
	case RankInstance:
		return "instance"
	case RankInstanceDetail:
		return "instance-detail"
	case RankIdentity:
		return "identity"
	}
	return "unknown"
}
