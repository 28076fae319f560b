package transport

import "strings"

// DefaultPrefix is the topic prefix agents subscribe under.
const DefaultPrefix = "Mario_Kart_8"

// Topics builds the topic names of one instance.
type Topics struct {
	root string
}

// NewTopics returns the topics rooted at <prefix>/<instanceID>.
func NewTopics(prefix, instanceID string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{root: prefix + "/" + instanceID}
}

func (t Topics) Root() string { return t.root }

func (t Topics) Status() string { return t.root + "/status" }

// StatusLeaf returns status/<name>.
func (t Topics) StatusLeaf(name string) string { return t.root + "/status/" + name }

func (t Topics) Step() string { return t.root + "/step" }

// StepLeaf returns step/<name>.
func (t Topics) StepLeaf(name string) string { return t.root + "/step/" + name }

func (t Topics) Reset() string  { return t.root + "/order/reset" }
func (t Topics) Action() string { return t.root + "/order/action" }

// Setup is the wildcard subscription for setup keys.
func (t Topics) Setup() string { return t.root + "/order/setup/+" }

// SetupKey extracts the key from an order/setup/<KEY> topic.
func (t Topics) SetupKey(topic string) (string, bool) {
	key, ok := strings.CutPrefix(topic, t.root+"/order/setup/")
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
