// Copyright 2024 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package pins

import (
	"testing"

	"github.com/binkynet/BoneIO/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		Input    string
		Expected Pin
	}{
		{"P9_14", P9_14},
		{"p9_14", P9_14},
		{" P8_13 ", P8_13},
		{"usr3", USR3},
	}
	for _, test := range tests {
		p, err := Parse(test.Input)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", test.Input, err)
		} else if p != test.Expected {
			t.Errorf("Parse(%q): expected %s, got %s", test.Input, test.Expected, p)
		}
	}

	for _, bad := range []string{"", "P10_1", "P9_47", "GPIO1"} {
		if _, err := Parse(bad); !model.IsInvalidArgument(err) {
			t.Errorf("Parse(%q): expected InvalidArgument, got %v", bad, err)
		}
	}
}

func TestCapabilities(t *testing.T) {
	if len(All()) != 96 {
		t.Errorf("Expected 96 pins, got %d", len(All()))
	}
	if info := P9_14.Info(); info.GPIO == nil || info.GPIO.Number != 50 || info.PWM == nil || info.PWM.ID != 1 {
		t.Errorf("Unexpected P9_14 info %+v", info)
	}
	if info := P9_39.Info(); info.Analog == nil || info.Analog.Channel != 0 || info.GPIO != nil {
		t.Errorf("Unexpected P9_39 info %+v", info)
	}
	if !USR0.IsLED() || P9_12.IsLED() {
		t.Error("LED detection failed")
	}
	if !P8_3.IsMMC() {
		t.Error("Expected P8_3 to be an mmc pin")
	}
	if err := Check(P9_1, CapabilityGPIO); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument for ground pin, got %v", err)
	}
	if err := Check(Pin(0), CapabilityGPIO); !model.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument for zero pin, got %v", err)
	}
	if err := Check(P9_17, CapabilityI2C); err != nil {
		t.Errorf("Expected P9_17 to support i2c: %v", err)
	}
}
