// Package geo tracks the device location on behalf of a signed-in user.
//
// A Tracker reconciles three inputs: whether the user is logged in, whether
// they have location sharing turned on, and what the host's geolocation
// permission currently is. From those it runs at most one continuous position
// watch, serves one-shot location requests, classifies every failure into a
// closed set of statuses, and writes a consistent LocationResult into a Store.
//
// The pieces, leaves first:
//
//   - PermissionMonitor keeps the best known PermissionState, from the host's
//     permission API when present and from a short probe request otherwise.
//   - SharingAllowed (and Gate, its reactive wrapper) decides whether tracking
//     is allowed right now.
//   - WatchController owns the continuous watch and stops it automatically
//     when sharing is turned off or permission is denied.
//   - OneShotLocator re-probes permission and fetches a single fresh fix.
//
// No public operation returns an error or panics because of a location
// failure. Callers observe the outcome through Tracker.Status and the other
// views, or through the Coordinates returned by GetCurrentLocation.
package geo
