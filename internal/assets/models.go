package assets

import _ "embed"

// ModelsData is the embedded model catalog: the providers infraforge can
// generate with and their selectable models.
//
//go:embed models.json
var ModelsData []byte
