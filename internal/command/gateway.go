package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/monitoring"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/safety"
	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/timeutil"
)

// Wire directives use the CMD_NAME#param#param form of the robot's original
// TCP protocol.
const (
	motorDirective = "CMD_MOTOR"
	fieldSeparator = "#"
)

var (
	ErrUnknownDirective   = errors.New("unknown directive")
	ErrMalformedDirective = errors.New("malformed directive")
)

// emergencyKeywords are matched case-insensitively against any inbound text
// before it reaches slower interpretation. Matching one triggers the
// override directly; voice commands and agent output both pass through here.
var emergencyKeywords = []string{"stop", "halt", "freeze", "emergency"}

// IsEmergency reports whether the text contains an emergency keyword.
func IsEmergency(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range emergencyKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// Gateway is the command-ingestion boundary: it classifies raw producer
// input and routes it to the mailbox or the emergency override. Producers
// call it fire-and-forget; nothing here blocks on the control loop.
type Gateway struct {
	mailbox  *Mailbox
	override *safety.Override
	clock    timeutil.Clock
	logf     func(format string, v ...interface{})
}

// NewGateway wires a gateway to the given mailbox and override. A nil clock
// takes the real clock.
func NewGateway(mailbox *Mailbox, override *safety.Override, clock timeutil.Clock) *Gateway {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Gateway{
		mailbox:  mailbox,
		override: override,
		clock:    clock,
		logf:     monitoring.Prefixed("command"),
	}
}

// HandleMotion publishes a left/right speed pair as the newest intent.
func (g *Gateway) HandleMotion(left, right int) {
	g.mailbox.Publish(safety.Intent{Left: left, Right: right, IssuedAt: g.clock.Now()})
}

// HandleText interprets a textual directive.
//
// The emergency keyword check runs first and its only effect is the override
// trigger: an emergency never touches the mailbox, so a stale intent cannot
// ride along with it. Only afterwards is the text parsed as a normal
// directive.
func (g *Gateway) HandleText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty input", ErrMalformedDirective)
	}

	if IsEmergency(text) {
		g.override.Trigger()
		return nil
	}

	fields := strings.Split(text, fieldSeparator)
	switch fields[0] {
	case motorDirective:
		left, right, err := parseMotorFields(fields)
		if err != nil {
			return err
		}
		g.HandleMotion(left, right)
		return nil
	default:
		g.logf("ignoring directive %q", fields[0])
		return fmt.Errorf("%w: %q", ErrUnknownDirective, fields[0])
	}
}

func parseMotorFields(fields []string) (left, right int, err error) {
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("%w: %s wants 2 parameters, got %d", ErrMalformedDirective, motorDirective, len(fields)-1)
	}
	left, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: left speed %q", ErrMalformedDirective, fields[1])
	}
	right, err = strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: right speed %q", ErrMalformedDirective, fields[2])
	}
	return left, right, nil
}
