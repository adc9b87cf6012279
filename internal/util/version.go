package util

// Version is the build version, set with -ldflags "-X ...util.Version=v1.2.3".
var Version = "dev"
