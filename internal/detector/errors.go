package detector

import "errors"

// ErrSensorFault reports too many consecutive invalid readings.
var ErrSensorFault = errors.New("detector: sensor fault")
