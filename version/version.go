package version

// Version is overridden at build time with -ldflags "-X edrwatch/version.Version=...".
var Version = "dev"
