// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"strings"

	"github.com/denisbrodbeck/machineid"
	"github.com/mazen160/go-random"
)

const appID = "tasmolink"

// DefaultDevice derives a stable device name from the machine id, in the
// tasmota_XXXXXX style. When no machine id is available a random suffix is used.
func DefaultDevice() string {
	if id, err := machineid.ProtectedID(appID); err == nil && len(id) >= 6 {
		return appID + "_" + strings.ToUpper(id[:6])
	}
	return RandomDevice()
}

// RandomDevice returns a device name with a random suffix.
func RandomDevice() string {
	suffix, err := random.String(6)
	if err != nil {
		return appID
	}
	return appID + "_" + strings.ToUpper(suffix)
}
