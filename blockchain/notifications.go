// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about cache events.
type NotificationCallback func(*Notification)

const (
	// NTBlockConnected indicates the associated block was durably
	// appended to the chain.
	NTBlockConnected NotificationType = iota

	// NTIndexRebuilt indicates the in-memory chain index was rebuilt
	// because the store root changed underneath the cache.
	NTIndexRebuilt
)

// notificationTypeStrings is a map of notification types back to their constant
// names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTBlockConnected: "NTBlockConnected",
	NTIndexRebuilt:   "NTIndexRebuilt",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// Notification defines notification that is sent to the caller via the
// callback registered with Subscribe and consists of a notification type
// as well as associated data that depends on the type as follows:
//   - NTBlockConnected: *SealedBlock
//   - NTIndexRebuilt:   types.Digest (the root the index was rebuilt at)
type Notification struct {
	Type NotificationType
	Data interface{}
}

// Subscribe to cache notifications. Registers a callback to be executed
// when various events take place. See the documentation on Notification and
// NotificationType for details on the types and contents of notifications.
func (c *Cache) Subscribe(callback NotificationCallback) {
	c.notificationsLock.Lock()
	c.notifications = append(c.notifications, callback)
	c.notificationsLock.Unlock()
}

// sendNotification sends a notification with the passed type and data to
// every subscriber.
func (c *Cache) sendNotification(typ NotificationType, data interface{}) {
	n := Notification{Type: typ, Data: data}
	c.notificationsLock.RLock()
	for _, callback := range c.notifications {
		go callback(&n)
	}
	c.notificationsLock.RUnlock()
}
