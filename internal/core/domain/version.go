package domain

// EngineVersion is announced in the boot banner and the info response so
// controllers can detect the firmware generation they are talking to.
const EngineVersion = "2.0"
