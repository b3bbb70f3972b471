// Package firmware resolves and downloads Zigbee OTA firmware images.
//
// A Repository walks an ordered list of remote manifest sources (the
// Koenkk zigbee-OTA index format) and caches both the parsed indexes and
// the resolved per-device matches with independent TTLs. Source failures
// are logged and skipped so one dead mirror never blocks an update check;
// image downloads, by contrast, fail hard.
package firmware
