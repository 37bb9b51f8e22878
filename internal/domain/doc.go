// Package domain models hazard points (fixed speed cameras and similar road
// hazards) and the proximity alert state kept for each of them.
//
// # Data Source
//
// The built-in hazard set comes from the public fixed speed camera lists of
// Portugal (ANSR, SINCRO network) and Spain (DGT). Operators can replace it
// with a JSON file or a SQLite store; see the registry package.
//
// # Coordinates
//
// Locations are WGS-84 latitude/longitude in decimal degrees:
//
//	lat ∈ [-90, 90], lng ∈ [-180, 180]
//
// Distances are great-circle (haversine) meters on a sphere of radius
// 6,371,000 m. [Distance] accepts out-of-range input numerically; range checks
// live in [Location.Validate] and are applied when hazards are loaded and
// when sources decode fixes.
//
// # Hysteresis
//
// Every hazard has exactly one [AlertState] whose [Phase] is Idle or Alerted.
// Two thresholds drive it:
//
//	Idle    --(distance <= enter)-->  Alerted   emits Entered
//	Alerted --(distance >  exit)-->   Idle      emits Exited
//
// With the defaults (enter 500 m, exit 1200 m) the 700 m band between them
// absorbs GPS jitter: a receiver wobbling around 500 m produces one Entered
// and nothing else until it has moved more than 1200 m away. Only Entered
// produces an announcement.
//
// # Announcements
//
// An [Announcement] is the payload handed to notifiers: hazard identity, the
// speed limit, the language, and the rendered phrase. IDs are random UUIDs;
// announcements are not deduplicated downstream.
package domain
