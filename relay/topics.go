package relay

import (
	"fmt"

	"github.com/vitwit/wakurelay/types"
)

// DefaultPubSubTopic is the waku pubsub topic every relayer subscribes to.
const DefaultPubSubTopic = types.DefaultPubSubTopic

const contentTopicPrefix = "/railgun/v2/"

// DefaultContentTopic carries traffic that is not chain specific.
func DefaultContentTopic() string {
	return contentTopicPrefix + "default/json"
}

// FeesContentTopic carries signed fee broadcasts for a chain.
func FeesContentTopic(chain types.ChainRef) string {
	return fmt.Sprintf("%s%d-%d-fees/json", contentTopicPrefix, int(chain.Type), chain.ID)
}

// TransactContentTopic carries transact requests and their responses for a chain.
func TransactContentTopic(chain types.ChainRef) string {
	return fmt.Sprintf("%s%d-%d-transact/json", contentTopicPrefix, int(chain.Type), chain.ID)
}

// ContentTopics returns the default topic followed by the fees and transact
// topics of every chain.
func ContentTopics(chains []types.ChainRef) []string {
	topics := make([]string, 0, 1+2*len(chains))
	topics = append(topics, DefaultContentTopic())
	for _, c := range chains {
		topics = append(topics, FeesContentTopic(c))
	}
	for _, c := range chains {
		topics = append(topics, TransactContentTopic(c))
	}
	return topics
}
