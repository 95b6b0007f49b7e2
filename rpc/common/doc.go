// Package common holds the protocol vocabulary and the configuration shared
// by the caller and the backend of a kBridge link.
//
// Key Components:
//
//   - CommandType, FieldType, ResultCode: the numeric enumerations carried in
//     every frame, with their wire limits (header sizes, field count).
//
//   - ServerConfig / ClientConfig: configuration of the two ends of a link,
//     including the transport and the liveness settings of the dispatcher.
//
//   - Logger: the dragonboat logger factory producing the
//     "LEVEL | name | message" lines every package logs through.
package common
