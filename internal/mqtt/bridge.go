package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ranmee/ifeel2mqtt/internal/shutter"
)

const (
	mqttOpenCmd  = "open"
	mqttCloseCmd = "close"
	mqttStopCmd  = "stop"
)

const (
	coverOpenState    = "open"
	coverClosedState  = "closed"
	coverOpeningState = "opening"
	coverClosingState = "closing"
)

// Bridge publishes one shutter's state over MQTT and feeds commands
// back into it.
type Bridge struct {
	mqtt    mqtt.Client
	shutter shutter.Shutter

	StateTopic    string
	PositionTopic string
	MetadataTopic string

	CommandTopic        string
	PositionChangeTopic string
}

func NewBridge(mqtt mqtt.Client, shutter shutter.Shutter) *Bridge {
	bridge := &Bridge{mqtt: mqtt, shutter: shutter}
	bridge.StateTopic = fmt.Sprintf("ifeel2mqtt/%s/state", shutter.Name())
	bridge.PositionTopic = fmt.Sprintf("ifeel2mqtt/%s/position", shutter.Name())
	bridge.MetadataTopic = fmt.Sprintf("ifeel2mqtt/%s/metadata", shutter.Name())
	bridge.CommandTopic = fmt.Sprintf("ifeel2mqtt/%s/set", shutter.Name())
	bridge.PositionChangeTopic = fmt.Sprintf("ifeel2mqtt/%s/position/set", shutter.Name())

	shutter.OnUpdate(bridge.onShutterUpdateHandler())

	return bridge
}

func (b *Bridge) SetMetadata(value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if token := b.mqtt.Publish(b.MetadataTopic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT metadata publish failed", b.shutter.Name())
	}

	return nil
}

func (b *Bridge) Subscribe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if token := b.mqtt.Unsubscribe(b.PositionChangeTopic, b.CommandTopic); token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.shutter.Name(), token.Error())
		}
	}()

	if token := b.mqtt.Subscribe(b.CommandTopic, 0, b.onCommandHandler(ctx)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT command topic subscription failed", b.shutter.Name())
	}
	logrus.Infof("%s: MQTT command topic subscribed", b.shutter.Name())
	if token := b.mqtt.Subscribe(b.PositionChangeTopic, 0, b.onPositionChangeHandler(ctx)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT position change topic subscription failed", b.shutter.Name())
	}
	logrus.Infof("%s: MQTT position change topic subscribed", b.shutter.Name())

	return nil
}

// Refresh reads the shutter position once; the update handler
// republishes it. Ran on a timer so out-of-band moves (wall switch)
// surface between commands.
func (b *Bridge) Refresh(ctx context.Context) {
	if _, err := b.shutter.CurrentPosition(ctx); err != nil {
		logrus.Debugf("%s: MQTT state refresh failed: %s", b.shutter.Name(), err)
	}
}

func (b *Bridge) onShutterUpdateHandler() shutter.UpdateHandler {
	return func(state shutter.MotionState, position int) {
		if token := b.mqtt.Publish(b.StateTopic, 0, true, coverState(state, position)); token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT state publish failed: %s", b.shutter.Name(), token.Error())
		}
		if token := b.mqtt.Publish(b.PositionTopic, 0, true, fmt.Sprintf("%d", position)); token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT position publish failed: %s", b.shutter.Name(), token.Error())
		}
	}
}

func (b *Bridge) onCommandHandler(ctx context.Context) mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		cmd := string(msg.Payload())
		switch cmd {
		case mqttOpenCmd:
			if err := b.shutter.SetTargetPosition(ctx, shutter.FullOpenPosition); err != nil {
				logrus.Error(err)
			}
		case mqttCloseCmd:
			if err := b.shutter.SetTargetPosition(ctx, shutter.FullClosePosition); err != nil {
				logrus.Error(err)
			}
		case mqttStopCmd:
			b.stop(ctx)
		default:
			logrus.Errorf("%s: MQTT unsupported %s command received", b.shutter.Name(), cmd)
		}
	}
}

// stop halts a moving shutter by commanding it to wherever it is right
// now. The hub has no dedicated stop operation.
func (b *Bridge) stop(ctx context.Context) {
	position, err := b.shutter.CurrentPosition(ctx)
	if err != nil {
		logrus.Errorf("%s: MQTT stop failed: %s", b.shutter.Name(), err)
		return
	}
	if err := b.shutter.SetTargetPosition(ctx, position); err != nil {
		logrus.Error(err)
	}
}

func (b *Bridge) onPositionChangeHandler(ctx context.Context) mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		pos, err := strconv.Atoi(string(msg.Payload()))
		if err != nil {
			logrus.Error(err)
			return
		}
		if err := b.shutter.SetTargetPosition(ctx, pos); err != nil {
			logrus.Error(err)
		}
	}
}

func coverState(state shutter.MotionState, position int) string {
	switch state {
	case shutter.MotionIncreasing:
		return coverOpeningState
	case shutter.MotionDecreasing:
		return coverClosingState
	}

	if position == shutter.FullClosePosition {
		return coverClosedState
	}
	return coverOpenState
}
