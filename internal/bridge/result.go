package bridge

// DataResult is a decoded DataError.
type DataResult struct {
	Data  string
	Error string
}

// Values returns the fields in ABI order.
func (r DataResult) Values() (data, errText string) {
	return r.Data, r.Error
}

// MultipleDataResult is a decoded MultipleDataError.
type MultipleDataResult struct {
	Data      string
	OtherData string
	Error     string
}

// Values returns the fields in ABI order.
func (r MultipleDataResult) Values() (data, otherData, errText string) {
	return r.Data, r.OtherData, r.Error
}

// Result is the shape-independent outcome of Invoke.
type Result struct {
	Shape     Shape
	Data      string
	OtherData string
	Error     string
}

// Values returns the decoded fields in ABI order; its length is
// Shape.Fields().
func (r Result) Values() []string {
	switch r.Shape {
	case ShapeError:
		return []string{r.Error}
	case ShapeData:
		return []string{r.Data, r.Error}
	case ShapeMultipleData:
		return []string{r.Data, r.OtherData, r.Error}
	default:
		return nil
	}
}

func (b *Bridge) decodeData(raw DataError) DataResult {
	return DataResult{
		Data:  b.takeOwnership("data", raw.Data),
		Error: b.takeOwnership("error", raw.Error),
	}
}

func (b *Bridge) decodeMultipleData(raw MultipleDataError) MultipleDataResult {
	return MultipleDataResult{
		Data:      b.takeOwnership("data", raw.Data),
		OtherData: b.takeOwnership("other_data", raw.OtherData),
		Error:     b.takeOwnership("error", raw.Error),
	}
}

func (b *Bridge) decodeError(raw uintptr) string {
	return b.takeOwnership("error", raw)
}
