// Package sinks builds the output sinks of a transform run.
//
// Each sink lives in its own subpackage and owns a DefaultProfile: the
// fields it consumes per object type, the value constraints records must
// satisfy and the accepted conditions. The Factory resolves the
// effective profile of every sink through a driving.ProfileService so
// that configuration can override the built-in defaults.
//
// Stream sinks (text, stats, bro, snort, structured) write to the
// factory's writer. Remote sinks (misp, elasticsearch, inbox, redis,
// kafka) and the sqlite record store read their endpoints from the
// output settings.
package sinks
