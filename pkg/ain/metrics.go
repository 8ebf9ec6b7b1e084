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

package ain

import (
	"github.com/binkynet/BoneIO/pkg/metrics"
)

const (
	subSystem = "ain"
)

var (
	readsTotal     = metrics.MustRegisterCounterVec(subSystem, "reads_total", "Number of analog reads", "pin")
	changesTotal   = metrics.MustRegisterCounterVec(subSystem, "changes_total", "Number of detected changes", "pin")
	crossingsTotal = metrics.MustRegisterCounterVec(subSystem, "crossings_total", "Number of threshold level changes", "pin", "level")
)
