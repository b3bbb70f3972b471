// Package datapoint translates between wire-level Tuya datapoints and
// generic home-automation capability values.
//
// The Tuya sub-protocol carries numbered datapoints (DPs) inside a
// manufacturer-specific cluster; each DP's meaning is known only by
// convention. This package holds the consolidated community registry of
// those conventions, an inference pass for unknown DPs, plausibility
// validation for decoded values, and a rate-limited dispatcher for
// outbound commands.
//
// Decoding is fail-soft by design: malformed or implausible reports are
// dropped (nil result) rather than surfaced as errors, so a single bad
// report never destabilises device state.
//
// Outbound dispatch shares one process-wide Limiter modelling the radio
// budget: a token-bucket quota over a rolling window plus a minimum
// inter-command spacing.
package datapoint
