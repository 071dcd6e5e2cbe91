package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	logging "github.com/ipfs/go-log/v2"

	"github.com/storacha/certifier/internal/config"
)

var log = logging.Logger("store/dynamo")

const (
	registrationIndex = "registration_no-index"
	emailIndex        = "email-index"
)

// DynamoDB provides storage via AWS DynamoDB
type DynamoDB struct {
	db                    *dynamodb.Client
	initialized           bool
	certificatesTableName string
	institutionsTableName string
}

// NewDynamoDBStore creates a new DynamoDB-backed store
func NewDynamoDBStore(cfg config.DynamoConfig) (*DynamoDB, error) {
	ctx := context.Background()

	// Use custom BaseEndpoint if endpoint is specified
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))

		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     "dummy",
				SecretAccessKey: "dummy",
			},
		}))
	}

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	store := &DynamoDB{
		db:                    dynamodb.NewFromConfig(awsCfg),
		certificatesTableName: cfg.CertificatesTableName,
		institutionsTableName: cfg.InstitutionsTableName,
	}

	return store, store.initialize(ctx, cfg)
}

// initialize creates tables if they don't exist
func (d *DynamoDB) initialize(ctx context.Context, cfg config.DynamoConfig) error {
	if d.initialized {
		return nil
	}

	tables := []struct {
		name       string
		keySchema  []types.KeySchemaElement
		attributes []types.AttributeDefinition
		indexes    []types.GlobalSecondaryIndex
	}{
		{
			name: cfg.CertificatesTableName,
			keySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("fingerprint"), KeyType: types.KeyTypeHash},
			},
			attributes: []types.AttributeDefinition{
				{AttributeName: aws.String("fingerprint"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("registration_no"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("email"), AttributeType: types.ScalarAttributeTypeS},
			},
			indexes: []types.GlobalSecondaryIndex{
				globalIndex(registrationIndex, "registration_no"),
				globalIndex(emailIndex, "email"),
			},
		},
		{
			name: cfg.InstitutionsTableName,
			keySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("name"), KeyType: types.KeyTypeHash},
			},
			attributes: []types.AttributeDefinition{
				{AttributeName: aws.String("name"), AttributeType: types.ScalarAttributeTypeS},
			},
		},
	}

	for _, table := range tables {
		_, err := d.db.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(table.name),
		})

		if err == nil {
			log.Infow("Table already exists", "table_name", table.name)
			continue
			// without an endpoint we are in production and the tables must already exist
		} else if cfg.Endpoint == "" {
			return fmt.Errorf("failed to check if table %s exists: %w", table.name, err)
		}

		input := &dynamodb.CreateTableInput{
			TableName:            aws.String(table.name),
			KeySchema:            table.keySchema,
			AttributeDefinitions: table.attributes,
			BillingMode:          types.BillingModePayPerRequest,
		}
		if len(table.indexes) > 0 {
			input.GlobalSecondaryIndexes = table.indexes
		}
		if _, err := d.db.CreateTable(ctx, input); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
		log.Infow("Created table", "table_name", table.name)
	}

	d.initialized = true
	log.Infow("DynamoDB store initialized",
		"region", d.db.Options().Region,
		"endpoint", d.db.Options().BaseEndpoint)
	return nil
}

func globalIndex(name, attribute string) types.GlobalSecondaryIndex {
	return types.GlobalSecondaryIndex{
		IndexName: aws.String(name),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attribute), KeyType: types.KeyTypeHash},
		},
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func (d *DynamoDB) ListCertificates(ctx context.Context) ([]Certificate, error) {
	var out []Certificate
	paginator := dynamodb.NewScanPaginator(d.db, &dynamodb.ScanInput{
		TableName: aws.String(d.certificatesTableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list certificates: %w", err)
		}
		for _, item := range page.Items {
			out = append(out, certificateFromItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InsertedAt.Before(out[j].InsertedAt) })
	return out, nil
}

// AddCertificate checks the secondary indexes before writing. The check and
// the write are not atomic; concurrent issuance is serialized by the issuer.
func (d *DynamoDB) AddCertificate(ctx context.Context, c Certificate) error {
	for _, key := range []Key{ByRegistrationNo(c.RegistrationNo), ByEmail(c.Email)} {
		if _, err := d.FindCertificate(ctx, key); err == nil {
			return fmt.Errorf("%s %s: %w", key.Kind, key.Value, ErrDuplicate)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	if c.InsertedAt.IsZero() {
		c.InsertedAt = time.Now().UTC()
	}
	item := map[string]types.AttributeValue{
		"fingerprint":     &types.AttributeValueMemberS{Value: c.Fingerprint},
		"registration_no": &types.AttributeValueMemberS{Value: c.RegistrationNo},
		"student_name":    &types.AttributeValueMemberS{Value: c.StudentName},
		"course_name":     &types.AttributeValueMemberS{Value: c.CourseName},
		"institution":     &types.AttributeValueMemberS{Value: c.Institution},
		"email":           &types.AttributeValueMemberS{Value: c.Email},
		"inserted_at":     &types.AttributeValueMemberS{Value: c.InsertedAt.Format(time.RFC3339Nano)},
	}
	if !c.IssueDate.IsZero() {
		item["issue_date"] = &types.AttributeValueMemberS{Value: c.IssueDate.Format(time.RFC3339)}
	}
	if c.ContentAddress != "" {
		item["content_address"] = &types.AttributeValueMemberS{Value: c.ContentAddress}
	}

	_, err := d.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.certificatesTableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(fingerprint)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("certificate %s: %w", c.Fingerprint, ErrDuplicate)
		}
		log.Errorw("Error adding certificate", "fingerprint", c.Fingerprint, "error", err)
		return fmt.Errorf("failed to add certificate: %w", err)
	}
	return nil
}

func (d *DynamoDB) RemoveCertificate(ctx context.Context, fingerprint string) error {
	_, err := d.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.certificatesTableName),
		Key: map[string]types.AttributeValue{
			"fingerprint": &types.AttributeValueMemberS{Value: fingerprint},
		},
		ConditionExpression: aws.String("attribute_exists(fingerprint)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		log.Errorw("Error removing certificate", "fingerprint", fingerprint, "error", err)
		return fmt.Errorf("failed to remove certificate: %w", err)
	}
	return nil
}

func (d *DynamoDB) FindCertificate(ctx context.Context, key Key) (*Certificate, error) {
	if key.Kind == KeyFingerprint {
		result, err := d.db.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(d.certificatesTableName),
			Key: map[string]types.AttributeValue{
				"fingerprint": &types.AttributeValueMemberS{Value: key.Value},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get certificate %s: %w", key.Value, err)
		}
		if len(result.Item) == 0 {
			return nil, ErrNotFound
		}
		c := certificateFromItem(result.Item)
		return &c, nil
	}

	var index string
	switch key.Kind {
	case KeyRegistrationNo:
		index = registrationIndex
	case KeyEmail:
		index = emailIndex
	default:
		return nil, fmt.Errorf("unknown key kind %q", key.Kind)
	}
	result, err := d.db.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(d.certificatesTableName),
		IndexName:                aws.String(index),
		KeyConditionExpression:   aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{"#k": string(key.Kind)},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: key.Value},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", index, err)
	}
	if len(result.Items) == 0 {
		return nil, ErrNotFound
	}
	c := certificateFromItem(result.Items[0])
	return &c, nil
}

func (d *DynamoDB) ListInstitutions(ctx context.Context) ([]Institution, error) {
	var out []Institution
	paginator := dynamodb.NewScanPaginator(d.db, &dynamodb.ScanInput{
		TableName: aws.String(d.institutionsTableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list institutions: %w", err)
		}
		for _, item := range page.Items {
			out = append(out, Institution{
				Name:      stringAttr(item, "name"),
				CreatedAt: timeAttr(item, "created_at"),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *DynamoDB) AddInstitution(ctx context.Context, name string) error {
	_, err := d.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.institutionsTableName),
		Item: map[string]types.AttributeValue{
			"name":       &types.AttributeValueMemberS{Value: name},
			"created_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#n)"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("institution %s: %w", name, ErrDuplicate)
		}
		return fmt.Errorf("failed to add institution: %w", err)
	}
	return nil
}

func (d *DynamoDB) RenameInstitution(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	_, err := d.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Delete: &types.Delete{
					TableName:                aws.String(d.institutionsTableName),
					Key:                      map[string]types.AttributeValue{"name": &types.AttributeValueMemberS{Value: from}},
					ConditionExpression:      aws.String("attribute_exists(#n)"),
					ExpressionAttributeNames: map[string]string{"#n": "name"},
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(d.institutionsTableName),
					Item: map[string]types.AttributeValue{
						"name":       &types.AttributeValueMemberS{Value: to},
						"created_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
					},
					ConditionExpression:      aws.String("attribute_not_exists(#n)"),
					ExpressionAttributeNames: map[string]string{"#n": "name"},
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for i, reason := range tce.CancellationReasons {
				if aws.ToString(reason.Code) != "ConditionalCheckFailed" {
					continue
				}
				if i == 0 {
					return ErrNotFound
				}
				return fmt.Errorf("institution %s: %w", to, ErrDuplicate)
			}
		}
		return fmt.Errorf("failed to rename institution: %w", err)
	}
	return nil
}

func (d *DynamoDB) RemoveInstitution(ctx context.Context, name string) error {
	_, err := d.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.institutionsTableName),
		Key:                      map[string]types.AttributeValue{"name": &types.AttributeValueMemberS{Value: name}},
		ConditionExpression:      aws.String("attribute_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to remove institution: %w", err)
	}
	return nil
}

func certificateFromItem(item map[string]types.AttributeValue) Certificate {
	return Certificate{
		Fingerprint:    stringAttr(item, "fingerprint"),
		RegistrationNo: stringAttr(item, "registration_no"),
		StudentName:    stringAttr(item, "student_name"),
		CourseName:     stringAttr(item, "course_name"),
		Institution:    stringAttr(item, "institution"),
		Email:          stringAttr(item, "email"),
		IssueDate:      timeAttr(item, "issue_date"),
		ContentAddress: stringAttr(item, "content_address"),
		InsertedAt:     timeAttr(item, "inserted_at"),
	}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func timeAttr(item map[string]types.AttributeValue, name string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, stringAttr(item, name))
	if err != nil {
		return time.Time{}
	}
	return t
}
