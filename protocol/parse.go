package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mantis_arm/kinematics"
)

// HelloToken is the greeting a controller prints after reset, followed by its
// robot ID.
const HelloToken = "HELLO WORLD! I AM AHROBOT #"

// statusPrefix starts every angle report.
const statusPrefix = "A"

// minStatusTokens is the fewest tokens an angle report can have.
const minStatusTokens = 5

// Kind classifies an inbound line.
type Kind int

const (
	// Unstructured lines are echoes, debug output or anything else the host
	// does not act on.
	Unstructured Kind = iota
	Greeting
	Status
	// Malformed lines looked like a greeting or status but failed to parse.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Unstructured:
		return "unstructured"
	case Greeting:
		return "greeting"
	case Status:
		return "status"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is one classified inbound line.
type Message struct {
	Kind Kind
	Line string

	// ID is the robot ID announced by a greeting. Zero means the robot has
	// not been issued one.
	ID int64

	// Angles holds the joints reported by a status line, in degrees.
	Angles map[kinematics.Joint]float64

	// Err explains why a Malformed line was rejected.
	Err error
}

// ParseLine classifies one line received from the controller. It never
// fails; lines that cannot be parsed come back as Malformed.
func ParseLine(line string) Message {
	line = strings.TrimRight(line, "\r\n")
	msg := Message{Kind: Unstructured, Line: line}

	if idx := strings.Index(line, HelloToken); idx >= 0 {
		return parseGreeting(msg, strings.TrimSpace(line[idx+len(HelloToken):]))
	}

	if strings.HasPrefix(line, statusPrefix) {
		tokens := strings.Fields(line)
		if len(tokens) < minStatusTokens || !isAngleToken(tokens[0]) {
			return msg
		}
		return parseStatus(msg, tokens)
	}

	return msg
}

func parseGreeting(msg Message, rest string) Message {
	// some firmware prints more after the ID
	if fields := strings.Fields(rest); len(fields) > 0 {
		rest = fields[0]
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		msg.Kind = Malformed
		msg.Err = fmt.Errorf("bad robot id %q: %w", rest, err)
		return msg
	}
	if id < 0 {
		msg.Kind = Malformed
		msg.Err = fmt.Errorf("negative robot id %d", id)
		return msg
	}
	msg.Kind = Greeting
	msg.ID = id
	return msg
}

// isAngleToken reports whether tok is a joint letter followed by a number.
// Diagnostic text such as "ALARM ..." fails this test.
func isAngleToken(tok string) bool {
	if len(tok) < 2 {
		return false
	}
	_, err := strconv.ParseFloat(tok[1:], 64)
	return err == nil
}

// parseStatus reads "<Letter><degrees>" tokens. Tokens naming no joint are
// skipped; a joint token with a bad number rejects the whole line.
func parseStatus(msg Message, tokens []string) Message {
	angles := make(map[kinematics.Joint]float64, len(tokens))
	for _, tok := range tokens {
		j, ok := kinematics.ParseJoint(tok[0])
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(tok[1:], 64)
		if err != nil {
			msg.Kind = Malformed
			msg.Err = fmt.Errorf("bad value in token %q: %w", tok, err)
			return msg
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			msg.Kind = Malformed
			msg.Err = fmt.Errorf("non-finite value in token %q", tok)
			return msg
		}
		angles[j] = v
	}
	msg.Kind = Status
	msg.Angles = angles
	return msg
}
